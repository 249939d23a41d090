package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/clicknps/webhook-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSchedulerScanInterval = 5 * time.Second
	defaultSchedulerScanLimit    = 100
	defaultSchedulerConcurrency  = 16
	defaultClaimLease            = 2 * time.Minute
)

// DeliveryExecutor runs one attempt for a claimed delivery.
type DeliveryExecutor interface {
	Execute(ctx context.Context, d domain.WebhookDelivery) (Outcome, error)
}

// SchedulerOptions tunes the scan loop. Zero values use the defaults.
type SchedulerOptions struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	ClaimLease  time.Duration
}

// Scheduler periodically claims due deliveries and hands them to the executor.
// Sends run in a bounded pool and a scan never waits for them.
type Scheduler struct {
	deliveries  repository.DeliveryRepository
	executor    DeliveryExecutor
	logger      *zap.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	limit       int
	concurrency int
	lease       time.Duration
	now         func() time.Time

	sends *errgroup.Group
}

func NewScheduler(
	deliveries repository.DeliveryRepository,
	executor DeliveryExecutor,
	opts SchedulerOptions,
	logger *zap.Logger,
) (*Scheduler, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("delivery executor is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSchedulerScanInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSchedulerScanLimit
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultSchedulerConcurrency
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = defaultClaimLease
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sends := &errgroup.Group{}
	sends.SetLimit(opts.Concurrency)

	return &Scheduler{
		deliveries:  deliveries,
		executor:    executor,
		logger:      logger,
		interval:    opts.Interval,
		limit:       opts.BatchSize,
		concurrency: opts.Concurrency,
		lease:       opts.ClaimLease,
		now:         time.Now,
		sends:       sends,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start scans until ctx is done, then waits for in-flight sends to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.drain()

	s.logger.Info("delivery scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("batchSize", s.limit),
		zap.Int("concurrency", s.concurrency),
	)

	if _, err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) drain() {
	_ = s.sends.Wait()
	s.logger.Info("delivery scheduler stopped")
}

// scanDue dispatches due deliveries until the batch or the send pool is
// exhausted and returns how many were handed off.
func (s *Scheduler) scanDue(ctx context.Context) (int, error) {
	now := s.now().UTC()

	released, err := s.deliveries.ReleaseStale(ctx, now.Add(-s.lease))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	if released > 0 {
		s.metrics.AddStaleClaimsReleased(released)
		s.logger.Warn("released stale delivery claims", zap.Int64("count", released))
	}

	due, err := s.deliveries.GetDue(ctx, now, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due deliveries: %w", err)
	}

	dispatched := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}

		id := due[i].ID
		if !s.sends.TryGo(func() error {
			s.process(ctx, id, now)
			return nil
		}) {
			// Pool is full; the rest stay pending for the next tick.
			break
		}
		dispatched++
	}

	return dispatched, nil
}

func (s *Scheduler) process(ctx context.Context, id string, now time.Time) {
	claimed, err := s.deliveries.Claim(ctx, id, now)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to claim delivery", zap.String("deliveryId", id), zap.Error(err))
		}
		return
	}
	if !claimed {
		s.metrics.IncClaimConflict()
		return
	}

	// Re-read after claiming so the attempt count is current.
	delivery, err := s.deliveries.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load claimed delivery", zap.String("deliveryId", id), zap.Error(err))
		if releaseErr := s.deliveries.Release(context.WithoutCancel(ctx), id); releaseErr != nil && !errors.Is(releaseErr, domain.ErrConflict) {
			s.logger.Error("failed to release claim", zap.String("deliveryId", id), zap.Error(releaseErr))
		}
		return
	}

	outcome, err := s.executor.Execute(ctx, *delivery)
	if err != nil {
		s.logger.Error("delivery attempt not recorded",
			zap.String("deliveryId", id),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}
