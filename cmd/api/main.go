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
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/clicknps/webhook-engine/internal/service"
	"github.com/clicknps/webhook-engine/internal/transport"
	"github.com/clicknps/webhook-engine/internal/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
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

	metrics := observability.NewMetrics()

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	settingsRepo := repository.NewGormSettingsRepo(db)

	deliveryQueue, err := service.NewDeliveryQueue(deliveryRepo, attemptRepo, settingsRepo, cfg.DeliveryDelay(), logger)
	if err != nil {
		logger.Fatal("delivery queue initialization failed", zap.Error(err))
	}
	deliveryQueue.SetMetrics(metrics, "http")

	settingsService, err := service.NewWebhookSettingsService(settingsRepo, logger)
	if err != nil {
		logger.Fatal("settings service initialization failed", zap.Error(err))
	}

	tester, err := service.NewTestSender(settingsRepo, webhook.NewRestySender(cfg.WebhookTimeout()), rateLimiter, logger)
	if err != nil {
		logger.Fatal("test sender initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               "clicknps-webhooks-api",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, nil)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterDeliveryRoutes(app, deliveryQueue); err != nil {
		logger.Fatal("failed to register delivery routes", zap.Error(err))
	}
	if err := handler.RegisterWebhookRoutes(app, settingsService, tester); err != nil {
		logger.Fatal("failed to register webhook routes", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("webhook api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-listenErr:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("webhook api stopped")
}
