package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/clicknps/webhook-engine/internal/ratelimit"
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/clicknps/webhook-engine/internal/webhook"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is what happened to a claimed delivery.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	// OutcomeReleased means the claim was given back without using an attempt.
	OutcomeReleased Outcome = "released"
)

var errWebhookRemoved = errors.New("webhook url is no longer configured")

// Executor performs one attempt for a claimed delivery and records the result.
type Executor struct {
	deliveries  repository.DeliveryRepository
	attempts    repository.AttemptRepository
	settings    repository.SettingsRepository
	sender      webhook.Sender
	rateLimiter ratelimit.RateLimiter
	policy      domain.BackoffPolicy
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewExecutor(
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	settings repository.SettingsRepository,
	sender webhook.Sender,
	rateLimiter ratelimit.RateLimiter,
	policy domain.BackoffPolicy,
	logger *zap.Logger,
) (*Executor, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("webhook sender is required")
	}
	if policy.MaxAttempts() == 0 {
		policy = domain.DefaultBackoffPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		deliveries:  deliveries,
		attempts:    attempts,
		settings:    settings,
		sender:      sender,
		rateLimiter: rateLimiter,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (e *Executor) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Execute sends d, which must already be claimed by the caller. Errors are
// returned only when the record could not be moved out of processing; the
// stale-claim sweep recovers those.
func (e *Executor) Execute(ctx context.Context, d domain.WebhookDelivery) (Outcome, error) {
	log := observability.DeliveryLogger(e.logger, &d)

	if e.rateLimiter != nil {
		allowed, err := e.rateLimiter.Allow(ctx, d.BusinessID)
		if err != nil {
			// Redis trouble must not stall deliveries; send anyway.
			log.Warn("rate limiter unavailable, sending without limit", zap.Error(err))
		} else if !allowed {
			e.metrics.IncThrottled()
			return e.release(ctx, d, log)
		}
	}

	settings, err := e.settings.Get(ctx, d.BusinessID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("failed to load webhook settings", zap.Error(err))
		return e.release(ctx, d, log)
	}

	body, err := webhook.PayloadFromDelivery(&d).Canonical()
	if err != nil {
		log.Error("failed to build webhook payload", zap.Error(err))
		return e.release(ctx, d, log)
	}

	attemptedAt := e.now().UTC()

	var (
		resp    *webhook.Response
		sendErr error
	)
	if settings.Enabled() {
		e.metrics.IncSendsInFlight()
		resp, sendErr = e.sender.Send(ctx, webhook.Request{
			URL:        settings.WebhookURL,
			Secret:     settings.WebhookSecret,
			Body:       body,
			DeliveryID: d.ID,
		})
		e.metrics.DecSendsInFlight()
	} else {
		sendErr = &webhook.DeliveryError{Kind: webhook.KindNetwork, Cause: errWebhookRemoved}
	}

	if sendErr != nil && ctx.Err() != nil && !webhook.IsRetryable(sendErr) {
		log.Info("send interrupted by shutdown, releasing claim")
		return e.release(ctx, d, log)
	}

	// The attempt happened; persist it even if the caller is shutting down.
	writeCtx := context.WithoutCancel(ctx)

	attemptNumber := d.Attempts + 1
	outcome := repository.AttemptOutcome{AttemptedAt: attemptedAt}
	if code := statusCodeOf(resp, sendErr); code > 0 {
		outcome.StatusCode = &code
	}
	if sendErr != nil {
		msg := sendErr.Error()
		outcome.Error = &msg
	}

	e.observeSend(resp, sendErr)
	e.recordAttempt(writeCtx, d.ID, attemptNumber, body, resp, outcome, log)

	var result Outcome
	switch {
	case sendErr == nil:
		result = OutcomeDelivered
		err = e.deliveries.MarkDelivered(writeCtx, d.ID, outcome)
	default:
		if next, ok := e.policy.NextAttemptAt(attemptedAt, attemptNumber); ok {
			result = OutcomeRetry
			err = e.deliveries.MarkRetry(writeCtx, d.ID, outcome, next)
			if err == nil {
				e.metrics.IncRetryScheduled()
				log.Info("webhook attempt failed, retry scheduled",
					zap.Int("attempt", attemptNumber),
					zap.Time("nextAttemptAt", next),
					zap.Error(sendErr),
				)
			}
		} else {
			result = OutcomeFailed
			err = e.deliveries.MarkFailed(writeCtx, d.ID, outcome)
			if err == nil {
				log.Warn("webhook delivery failed permanently",
					zap.Int("attempts", attemptNumber),
					zap.Error(sendErr),
				)
			}
		}
	}

	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			e.metrics.IncClaimConflict()
			log.Warn("delivery left processing before the attempt was recorded", zap.String("outcome", string(result)))
		}
		return result, fmt.Errorf("failed to record %s outcome: %w", result, err)
	}

	e.metrics.IncDeliveryOutcome(string(result))
	if result == OutcomeDelivered {
		log.Info("webhook delivered",
			zap.Int("attempt", attemptNumber),
			zap.Int("statusCode", resp.StatusCode),
		)
	}
	return result, nil
}

func (e *Executor) release(ctx context.Context, d domain.WebhookDelivery, log *zap.Logger) (Outcome, error) {
	if err := e.deliveries.Release(context.WithoutCancel(ctx), d.ID); err != nil {
		return OutcomeReleased, fmt.Errorf("failed to release claim: %w", err)
	}
	log.Debug("delivery claim released")
	return OutcomeReleased, nil
}

func (e *Executor) recordAttempt(
	ctx context.Context,
	deliveryID string,
	attemptNumber int,
	payload []byte,
	resp *webhook.Response,
	outcome repository.AttemptOutcome,
	log *zap.Logger,
) {
	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		DeliveryID:    deliveryID,
		AttemptNumber: attemptNumber,
		StatusCode:    outcome.StatusCode,
		Error:         outcome.Error,
		Payload:       payload,
		CreatedAt:     outcome.AttemptedAt,
	}
	if resp != nil {
		attempt.DurationMs = resp.Duration.Milliseconds()
		if body := strings.TrimSpace(resp.Body); body != "" {
			attempt.ResponseBody = &body
		}
	}

	// The attempt log is informational; the delivery row is the source of truth.
	if err := e.attempts.Create(ctx, attempt); err != nil {
		log.Error("failed to record delivery attempt",
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}

func (e *Executor) observeSend(resp *webhook.Response, sendErr error) {
	if resp == nil {
		return
	}
	result := "success"
	var deliveryErr *webhook.DeliveryError
	if errors.As(sendErr, &deliveryErr) {
		result = string(deliveryErr.Kind) + "_error"
	}
	e.metrics.ObserveSendDuration(result, resp.Duration)
}

func statusCodeOf(resp *webhook.Response, sendErr error) int {
	if resp != nil && resp.StatusCode > 0 {
		return resp.StatusCode
	}
	if code, ok := webhook.StatusCodeOf(sendErr); ok {
		return code
	}
	return 0
}
