package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/queue"
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/clicknps/webhook-engine/internal/webhook"
)

// memDeliveryRepo mirrors the conditional-update semantics of GormDeliveryRepo.
type memDeliveryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.WebhookDelivery

	createErr error
	getDueErr error
}

var _ repository.DeliveryRepository = (*memDeliveryRepo)(nil)

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{records: map[string]*domain.WebhookDelivery{}}
}

func (r *memDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.records {
		if existing.ResponseID == d.ResponseID {
			return domain.ErrConflict
		}
	}
	copied := *d
	r.records[d.ID] = &copied
	return nil
}

func (r *memDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *memDeliveryRepo) GetByResponseID(ctx context.Context, responseID string) (*domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.records {
		if d.ResponseID == responseID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memDeliveryRepo) ListRecentByBusiness(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.WebhookDelivery, 0)
	for _, d := range r.records {
		if d.BusinessID == businessID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDeliveryRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getDueErr != nil {
		return nil, r.getDueErr
	}
	out := make([]domain.WebhookDelivery, 0)
	for _, d := range r.records {
		if d.IsDue(now) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDeliveryRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.records[id]
	if !ok || !d.IsDue(now) {
		return false, nil
	}
	d.Status = domain.DeliveryStatusProcessing
	claimedAt := now
	d.ClaimedAt = &claimedAt
	return true, nil
}

func (r *memDeliveryRepo) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.records[id]
	if !ok || d.Status != domain.DeliveryStatusProcessing {
		return domain.ErrConflict
	}
	d.Status = domain.DeliveryStatusPending
	d.ClaimedAt = nil
	return nil
}

func (r *memDeliveryRepo) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, d := range r.records {
		if d.Status == domain.DeliveryStatusProcessing && d.ClaimedAt != nil && d.ClaimedAt.Before(claimedBefore) {
			d.Status = domain.DeliveryStatusPending
			d.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *memDeliveryRepo) MarkDelivered(ctx context.Context, id string, outcome repository.AttemptOutcome) error {
	return r.finish(id, outcome, domain.DeliveryStatusDelivered, nil)
}

func (r *memDeliveryRepo) MarkRetry(ctx context.Context, id string, outcome repository.AttemptOutcome, nextAttemptAt time.Time) error {
	return r.finish(id, outcome, domain.DeliveryStatusPending, &nextAttemptAt)
}

func (r *memDeliveryRepo) MarkFailed(ctx context.Context, id string, outcome repository.AttemptOutcome) error {
	return r.finish(id, outcome, domain.DeliveryStatusFailed, nil)
}

func (r *memDeliveryRepo) finish(id string, outcome repository.AttemptOutcome, status domain.DeliveryStatus, next *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.records[id]
	if !ok || d.Status != domain.DeliveryStatusProcessing {
		return domain.ErrConflict
	}
	attemptedAt := outcome.AttemptedAt
	d.Status = status
	d.Attempts++
	d.LastAttemptAt = &attemptedAt
	d.ResponseStatusCode = outcome.StatusCode
	d.LastError = outcome.Error
	d.ClaimedAt = nil
	if next != nil {
		d.NextAttemptAt = *next
	}
	return nil
}

func (r *memDeliveryRepo) get(id string) domain.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

func (r *memDeliveryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
}

func (r *memAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memAttemptRepo) GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DeliveryAttempt, 0)
	for _, a := range r.attempts {
		if a.DeliveryID == deliveryID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSettingsRepo struct {
	getFn      func(ctx context.Context, businessID string) (*domain.WebhookSettings, error)
	upsertFn   func(ctx context.Context, settings *domain.WebhookSettings) error
	clearURLFn func(ctx context.Context, businessID string) error
}

func (f *fakeSettingsRepo) Get(ctx context.Context, businessID string) (*domain.WebhookSettings, error) {
	if f.getFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getFn(ctx, businessID)
}

func (f *fakeSettingsRepo) Upsert(ctx context.Context, settings *domain.WebhookSettings) error {
	if f.upsertFn == nil {
		return nil
	}
	return f.upsertFn(ctx, settings)
}

func (f *fakeSettingsRepo) ClearURL(ctx context.Context, businessID string) error {
	if f.clearURLFn == nil {
		return nil
	}
	return f.clearURLFn(ctx, businessID)
}

func configuredSettings(url string) *fakeSettingsRepo {
	return &fakeSettingsRepo{
		getFn: func(ctx context.Context, businessID string) (*domain.WebhookSettings, error) {
			return &domain.WebhookSettings{
				BusinessID:    businessID,
				WebhookURL:    url,
				WebhookSecret: "whsec_test",
			}, nil
		},
	}
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []webhook.Request
	sendFn func(ctx context.Context, req webhook.Request) (*webhook.Response, error)
}

func (f *fakeSender) Send(ctx context.Context, req webhook.Request) (*webhook.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.sendFn == nil {
		return &webhook.Response{StatusCode: 200, Body: "ok"}, nil
	}
	return f.sendFn(ctx, req)
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, businessID string) (bool, error)
	waitFn  func(ctx context.Context, businessID string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, businessID string) (bool, error) {
	if f.allowFn == nil {
		return true, nil
	}
	return f.allowFn(ctx, businessID)
}

func (f *fakeRateLimiter) Wait(ctx context.Context, businessID string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, businessID)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.consumeFn(ctx, queueName, handler)
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeExecutor struct {
	executeFn func(ctx context.Context, d domain.WebhookDelivery) (Outcome, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, d domain.WebhookDelivery) (Outcome, error) {
	return f.executeFn(ctx, d)
}

// testClock is a settable clock shared by the components under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func intPtr(v int) *int { return &v }
