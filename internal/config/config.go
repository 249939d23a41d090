package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/clicknps/webhook-engine/internal/domain"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	WorkerPort  int    `env:"WORKER_PORT,default=8081"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	DeliveryDelaySeconds     int    `env:"DELIVERY_DELAY_SECONDS,default=180"`
	WebhookBackoff           string `env:"WEBHOOK_BACKOFF,default=1m 5m 30m 2h 6h 12h 24h"`
	WebhookTimeoutSeconds    int    `env:"WEBHOOK_TIMEOUT_SECONDS,default=10"`
	SchedulerIntervalSeconds int    `env:"SCHEDULER_INTERVAL_SECONDS,default=5"`
	SchedulerBatchSize       int    `env:"SCHEDULER_BATCH_SIZE,default=100"`
	WorkerConcurrency        int    `env:"WORKER_CONCURRENCY,default=16"`
	RateLimitPerSec          int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	RateLimitWindowMs        int    `env:"RATE_LIMIT_WINDOW_MS,default=1000"`
	ClaimLeaseSeconds        int    `env:"CLAIM_LEASE_SECONDS,default=120"`
	ResponseQueue            string `env:"RESPONSE_QUEUE,default=survey.responses"`
	IngestConsumers          int    `env:"INGEST_CONSUMERS,default=2"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := domain.ParseBackoffPolicy(c.WebhookBackoff); err != nil {
		return fmt.Errorf("WEBHOOK_BACKOFF: %w", err)
	}

	if c.DeliveryDelaySeconds < 0 {
		return fmt.Errorf("DELIVERY_DELAY_SECONDS must not be negative")
	}
	if c.WebhookTimeoutSeconds <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT_SECONDS must be positive")
	}
	if c.ClaimLeaseSeconds <= c.WebhookTimeoutSeconds {
		return fmt.Errorf("CLAIM_LEASE_SECONDS must exceed WEBHOOK_TIMEOUT_SECONDS")
	}
	if c.RateLimitWindowMs < 10 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be at least 10")
	}
	if c.ResponseQueue == "" {
		return fmt.Errorf("RESPONSE_QUEUE must not be empty")
	}
	return nil
}

func (c *Config) DeliveryDelay() time.Duration {
	return time.Duration(c.DeliveryDelaySeconds) * time.Second
}

// BackoffPolicy returns the parsed WEBHOOK_BACKOFF schedule. Load has already
// validated it; the default table is used if the field was changed since.
func (c *Config) BackoffPolicy() domain.BackoffPolicy {
	policy, err := domain.ParseBackoffPolicy(c.WebhookBackoff)
	if err != nil {
		return domain.DefaultBackoffPolicy()
	}
	return policy
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

func (c *Config) ClaimLease() time.Duration {
	return time.Duration(c.ClaimLeaseSeconds) * time.Second
}
