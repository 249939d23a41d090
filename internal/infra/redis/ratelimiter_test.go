package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), 2, time.Second, &now, nil)

	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{name: "first call", want: true},
		{name: "second call", want: true},
		{name: "third call over limit", want: false},
		{name: "same window later", advance: 900 * time.Millisecond, want: false},
		{name: "next window", advance: 100 * time.Millisecond, want: true},
	}

	for _, tt := range tests {
		now = now.Add(tt.advance)
		allowed, err := limiter.Allow(context.Background(), "biz-1")
		if err != nil {
			t.Fatalf("%s: Allow() error = %v", tt.name, err)
		}
		if allowed != tt.want {
			t.Fatalf("%s: allowed = %v, want %v", tt.name, allowed, tt.want)
		}
	}
}

func TestRedisRateLimiterAllowPerBusiness(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_100, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), 1, time.Second, &now, nil)

	for _, step := range []struct {
		businessID string
		want       bool
	}{
		{businessID: "biz-1", want: true},
		{businessID: "biz-2", want: true},
		{businessID: "biz-1", want: false},
		{businessID: "biz-2", want: false},
	} {
		allowed, err := limiter.Allow(context.Background(), step.businessID)
		if err != nil {
			t.Fatalf("Allow(%s) error = %v", step.businessID, err)
		}
		if allowed != step.want {
			t.Fatalf("Allow(%s) = %v, want %v", step.businessID, allowed, step.want)
		}
	}
}

func TestRedisRateLimiterCustomWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_150, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), 3, time.Minute, &now, nil)

	for i := 0; i < 3; i++ {
		if allowed, _ := limiter.Allow(context.Background(), "biz-1"); !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	now = now.Add(30 * time.Second)
	if allowed, _ := limiter.Allow(context.Background(), "biz-1"); allowed {
		t.Fatal("minute window should still be full after 30s")
	}

	now = now.Add(30 * time.Second)
	if allowed, _ := limiter.Allow(context.Background(), "biz-1"); !allowed {
		t.Fatal("next minute window should allow the call")
	}
}

func TestRedisRateLimiterWaitSleepsUntilNextWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_200, 0).Add(250 * time.Millisecond)
	var slept []time.Duration
	limiter := newTestLimiter(t, newTestRedisClient(t), 1, time.Second, &now,
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		},
	)

	if err := limiter.Wait(context.Background(), "biz-3"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("first Wait() slept %v, want no sleep", slept)
	}

	if err := limiter.Wait(context.Background(), "biz-3"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if len(slept) != 1 || slept[0] != 750*time.Millisecond {
		t.Fatalf("slept = %v, want [750ms]", slept)
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_300, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), 1, time.Second, &now, sleepWithContext)

	if allowed, err := limiter.Allow(context.Background(), "biz-1"); err != nil || !allowed {
		t.Fatalf("Allow() = %v, %v, want first call allowed", allowed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx, "biz-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestRedisRateLimiterAllowRequiresBusinessID(t *testing.T) {
	t.Parallel()

	limiter, err := NewRedisRateLimiter(newTestRedisClient(t), 5, 0)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	if limiter.window != DefaultWindow {
		t.Fatalf("window = %v, want %v", limiter.window, DefaultWindow)
	}

	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank business id")
	}
}

func TestNewRedisRateLimiterRejectsTinyWindow(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(newTestRedisClient(t), 5, time.Millisecond); err == nil {
		t.Fatal("expected error for a window below the minimum")
	}
}

func TestRedisRateLimiterWindowKey(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)

	now := time.Unix(1_700_000_400, 0)
	limiter := newTestLimiter(t, rdb, 1, 500*time.Millisecond, &now, nil)

	if _, err := limiter.Allow(context.Background(), "biz-9"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	key := limiter.windowKey("biz-9", now)
	if !strings.Contains(key, "{biz-9}") || !strings.Contains(key, ":500ms:") {
		t.Fatalf("key = %q, want hash-tagged business and window length", key)
	}
	if !mr.Exists(key) {
		t.Fatalf("window key %q was not written", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 500*time.Millisecond {
		t.Fatalf("ttl = %v, want within one window", ttl)
	}
}

func newTestLimiter(
	t *testing.T,
	client goredis.Scripter,
	limit int,
	window time.Duration,
	now *time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) *RedisRateLimiter {
	t.Helper()

	limiter, err := newRedisRateLimiter(client, limit, window, func() time.Time { return *now }, sleepFn)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	return limiter
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	_, rdb := newTestRedis(t)
	return rdb
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return mr, rdb
}
