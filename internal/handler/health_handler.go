package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// BrokerStatus reports whether the message broker connection is open.
type BrokerStatus interface {
	IsConnected() bool
}

// RegisterHealthRoutes mounts /livez and /readyz. broker may be nil for
// processes that do not consume from RabbitMQ.
func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker BrokerStatus) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, broker BrokerStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		ready := true
		checks := fiber.Map{}

		checks["postgres"] = checkStatus(sqlDB.PingContext(ctx) == nil, &ready)
		checks["redis"] = checkStatus(rdb.Ping(ctx).Err() == nil, &ready)
		if broker != nil {
			checks["rabbitmq"] = checkStatus(broker.IsConnected(), &ready)
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func checkStatus(ok bool, ready *bool) string {
	if ok {
		return "ok"
	}
	*ready = false
	return "down"
}
