package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/clicknps/webhook-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minIngestConcurrency = 1

// ResponseEnqueuer is the part of DeliveryQueue used by ingestion.
type ResponseEnqueuer interface {
	Enqueue(ctx context.Context, resp domain.SurveyResponse) (*domain.WebhookDelivery, error)
}

// IngestWorker consumes survey-response events and enqueues deliveries.
type IngestWorker struct {
	consumer    queue.Consumer
	enqueuer    ResponseEnqueuer
	queueName   string
	concurrency int
	logger      *zap.Logger
}

func NewIngestWorker(
	consumer queue.Consumer,
	enqueuer ResponseEnqueuer,
	queueName string,
	concurrency int,
	logger *zap.Logger,
) (*IngestWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	if queueName == "" {
		queueName = queue.DefaultResponseQueue
	}
	if concurrency < minIngestConcurrency {
		concurrency = minIngestConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestWorker{
		consumer:    consumer,
		enqueuer:    enqueuer,
		queueName:   queueName,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start runs the consumers until context cancellation.
func (w *IngestWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		consumerID := i + 1

		g.Go(func() error {
			w.logger.Info("ingest consumer started",
				zap.Int("consumerId", consumerID),
				zap.String("queue", w.queueName),
			)

			if err := w.consumer.Consume(groupCtx, w.queueName, w.handleMessage); err != nil {
				w.logger.Error("ingest consumer stopped with error",
					zap.Int("consumerId", consumerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("ingest consumer stopped", zap.Int("consumerId", consumerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *IngestWorker) handleMessage(ctx context.Context, msg queue.SurveyResponseMessage) error {
	log := observability.WithContextLogger(w.logger, ctx)

	delivery, err := w.enqueuer.Enqueue(ctx, msg.ToDomain())
	if errors.Is(err, domain.ErrWebhookNotConfigured) {
		log.Debug("business has no webhook configured, skipping",
			zap.String("businessId", msg.BusinessID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	log.Debug("survey response ingested",
		zap.String("deliveryId", delivery.ID),
		zap.String("responseId", delivery.ResponseID),
	)
	return nil
}
