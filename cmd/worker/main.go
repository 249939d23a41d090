package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clicknps/webhook-engine/internal/config"
	"github.com/clicknps/webhook-engine/internal/handler"
	"github.com/clicknps/webhook-engine/internal/infra/postgresql"
	"github.com/clicknps/webhook-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/clicknps/webhook-engine/internal/infra/redis"
	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/clicknps/webhook-engine/internal/queue"
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/clicknps/webhook-engine/internal/service"
	"github.com/clicknps/webhook-engine/internal/transport"
	"github.com/clicknps/webhook-engine/internal/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, cfg.RateLimitWindow())
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.ResponseQueue)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer broker.Close()

	metrics := observability.NewMetrics()

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	settingsRepo := repository.NewGormSettingsRepo(db)

	deliveryQueue, err := service.NewDeliveryQueue(deliveryRepo, attemptRepo, settingsRepo, cfg.DeliveryDelay(), logger)
	if err != nil {
		logger.Fatal("delivery queue initialization failed", zap.Error(err))
	}
	deliveryQueue.SetMetrics(metrics, "rabbitmq")

	ingest, err := service.NewIngestWorker(
		queue.NewRabbitMQConsumer(broker, cfg.WorkerConcurrency, logger),
		deliveryQueue,
		cfg.ResponseQueue,
		cfg.IngestConsumers,
		logger,
	)
	if err != nil {
		logger.Fatal("ingest worker initialization failed", zap.Error(err))
	}

	executor, err := service.NewExecutor(
		deliveryRepo,
		attemptRepo,
		settingsRepo,
		webhook.NewRestySender(cfg.WebhookTimeout()),
		rateLimiter,
		cfg.BackoffPolicy(),
		logger,
	)
	if err != nil {
		logger.Fatal("executor initialization failed", zap.Error(err))
	}
	executor.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(deliveryRepo, executor, service.SchedulerOptions{
		Interval:    cfg.SchedulerInterval(),
		BatchSize:   cfg.SchedulerBatchSize,
		Concurrency: cfg.WorkerConcurrency,
		ClaimLease:  cfg.ClaimLease(),
	}, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "clicknps-webhooks-worker",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingest.Start(gctx)
	})
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	logger.Info("webhook worker started",
		zap.Int("port", cfg.WorkerPort),
		zap.String("queue", cfg.ResponseQueue),
		zap.Stringer("backoff", cfg.BackoffPolicy()),
	)

	if err := g.Wait(); err != nil {
		logger.Error("webhook worker stopped with error", zap.Error(err))
		return
	}

	logger.Info("webhook worker stopped")
}
