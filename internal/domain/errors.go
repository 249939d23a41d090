package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrWebhookNotConfigured is returned when a business has no webhook URL.
	// Webhooks are opt-in, so callers treat it as a no-op.
	ErrWebhookNotConfigured = errors.New("webhook not configured")
)
