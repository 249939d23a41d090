package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Second

	minWindow = 10 * time.Millisecond
	keyPrefix = "webhook:ratelimit"
)

// ARGV[1] is the limit, ARGV[2] the window in milliseconds.
var reserveScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps sends per business in fixed windows shared by every
// worker process. A throttled caller learns how long until its window rolls.
type RedisRateLimiter struct {
	client goredis.Scripter
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter allows limit sends per business in each window.
// Non-positive values fall back to DefaultLimit and DefaultWindow.
func NewRedisRateLimiter(client *goredis.Client, limit int, window time.Duration) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newRedisRateLimiter(client, limit, window, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client goredis.Scripter,
	limit int,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if window < minWindow {
		return nil, fmt.Errorf("rate limit window must be at least %s", minWindow)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, businessID string) (bool, error) {
	allowed, _, err := r.reserve(ctx, businessID)
	return allowed, err
}

// Wait blocks until the business has a free slot, sleeping to the start of
// the next window each time it is throttled.
func (r *RedisRateLimiter) Wait(ctx context.Context, businessID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, retryAfter, err := r.reserve(ctx, businessID)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if err := r.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// reserve takes one slot in the current window. When the window is full it
// reports the time left until the next one.
func (r *RedisRateLimiter) reserve(ctx context.Context, businessID string) (bool, time.Duration, error) {
	if r == nil || r.client == nil {
		return false, 0, fmt.Errorf("rate limiter is not initialized")
	}

	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return false, 0, fmt.Errorf("business id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now()
	result, err := reserveScript.Run(ctx, r.client,
		[]string{r.windowKey(businessID, now)},
		r.limit,
		r.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, 0, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if result == 1 {
		return true, 0, nil
	}

	return false, r.untilNextWindow(now), nil
}

// windowKey hash-tags the business id so every window of one business lands
// on the same cluster slot.
func (r *RedisRateLimiter) windowKey(businessID string, now time.Time) string {
	return fmt.Sprintf("%s:{%s}:%dms:%d", keyPrefix, businessID, r.window.Milliseconds(), r.windowIndex(now))
}

func (r *RedisRateLimiter) windowIndex(now time.Time) int64 {
	return now.UTC().UnixMilli() / r.window.Milliseconds()
}

func (r *RedisRateLimiter) untilNextWindow(now time.Time) time.Duration {
	next := time.UnixMilli((r.windowIndex(now) + 1) * r.window.Milliseconds())
	if d := next.Sub(now); d > 0 {
		return d
	}
	return time.Millisecond
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
