package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const MaxWebhookURLLength = 2048

// WebhookSettings holds a business's outbound webhook configuration.
type WebhookSettings struct {
	BusinessID    string
	WebhookURL    string
	WebhookSecret string
	UpdatedAt     time.Time
}

// Enabled reports whether deliveries should be created for the business.
func (s *WebhookSettings) Enabled() bool {
	return s != nil && strings.TrimSpace(s.WebhookURL) != ""
}

// ValidateWebhookURL checks that raw is an absolute http(s) URL.
func ValidateWebhookURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: webhook_url is required", ErrValidation)
	}
	if len(trimmed) > MaxWebhookURLLength {
		return fmt.Errorf("%w: webhook_url exceeds %d characters", ErrValidation, MaxWebhookURLLength)
	}

	u, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return fmt.Errorf("%w: invalid webhook_url", ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: webhook_url must use http or https", ErrValidation)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: webhook_url must include a host", ErrValidation)
	}
	return nil
}
