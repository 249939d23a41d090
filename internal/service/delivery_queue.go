package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryQueue turns survey responses into pending webhook deliveries.
type DeliveryQueue struct {
	deliveries repository.DeliveryRepository
	attempts   repository.AttemptRepository
	settings   repository.SettingsRepository
	delay      time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
	source     string
}

func NewDeliveryQueue(
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	settings repository.SettingsRepository,
	delay time.Duration,
	logger *zap.Logger,
) (*DeliveryQueue, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if delay < 0 {
		delay = domain.DefaultDeliveryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryQueue{
		deliveries: deliveries,
		attempts:   attempts,
		settings:   settings,
		delay:      delay,
		logger:     logger,
	}, nil
}

// SetMetrics attaches collectors; source labels the ingestion path.
func (q *DeliveryQueue) SetMetrics(metrics *observability.Metrics, source string) {
	if q == nil {
		return
	}
	q.metrics = metrics
	q.source = source
}

// Enqueue creates a pending delivery eligible at CreatedAt plus the configured
// delay. It returns ErrWebhookNotConfigured when the business has no URL, and
// the existing record when the response was already enqueued.
func (q *DeliveryQueue) Enqueue(ctx context.Context, resp domain.SurveyResponse) (*domain.WebhookDelivery, error) {
	resp.Normalize()
	if err := resp.Validate(); err != nil {
		return nil, err
	}

	settings, err := q.settings.Get(ctx, resp.BusinessID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load webhook settings: %w", err)
	}
	if !settings.Enabled() {
		return nil, domain.ErrWebhookNotConfigured
	}

	existing, err := q.deliveries.GetByResponseID(ctx, resp.ResponseID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up delivery: %w", err)
	}

	delivery := &domain.WebhookDelivery{
		ID:            uuid.NewString(),
		ResponseID:    resp.ResponseID,
		BusinessID:    resp.BusinessID,
		SurveyID:      resp.SurveyID,
		SubjectID:     resp.SubjectID,
		Score:         resp.Score,
		Comment:       resp.Comment,
		Status:        domain.DeliveryStatusPending,
		Attempts:      0,
		NextAttemptAt: resp.CreatedAt.Add(q.delay),
		CreatedAt:     resp.CreatedAt,
	}

	if err := q.deliveries.Create(ctx, delivery); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race with a concurrent enqueue of the same response.
			return q.deliveries.GetByResponseID(ctx, resp.ResponseID)
		}
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	q.metrics.IncEnqueued(q.source)
	observability.WithContextLogger(q.logger, ctx).Info("webhook delivery enqueued",
		zap.String("deliveryId", delivery.ID),
		zap.String("businessId", delivery.BusinessID),
		zap.String("responseId", delivery.ResponseID),
		zap.Time("nextAttemptAt", delivery.NextAttemptAt),
	)

	return delivery, nil
}

// ListRecent returns the newest deliveries for a business.
func (q *DeliveryQueue) ListRecent(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("%w: business_id is required", domain.ErrValidation)
	}
	if limit > repository.MaxRecentLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", domain.ErrValidation, repository.MaxRecentLimit)
	}
	if limit < 1 {
		limit = repository.DefaultRecentLimit
	}

	return q.deliveries.ListRecentByBusiness(ctx, businessID, limit)
}

// Attempts returns the attempt log of a delivery owned by businessID.
func (q *DeliveryQueue) Attempts(ctx context.Context, businessID, deliveryID string) ([]domain.DeliveryAttempt, error) {
	// Delivery ids are uuid columns; anything else cannot exist.
	if _, err := uuid.Parse(strings.TrimSpace(deliveryID)); err != nil {
		return nil, domain.ErrNotFound
	}
	deliveryID = strings.TrimSpace(deliveryID)

	delivery, err := q.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.BusinessID != businessID {
		return nil, domain.ErrNotFound
	}
	return q.attempts.GetByDeliveryID(ctx, deliveryID)
}
