package domain

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusProcessing, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// CanTransition reports whether moving from s to next is allowed.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	switch s {
	case DeliveryStatusPending:
		return next == DeliveryStatusProcessing
	case DeliveryStatusProcessing:
		return next == DeliveryStatusDelivered || next == DeliveryStatusPending || next == DeliveryStatusFailed
	}
	return false
}

// WebhookDelivery is one outbound notification of a survey response.
type WebhookDelivery struct {
	ID                 string
	ResponseID         string
	BusinessID         string
	SurveyID           string
	SubjectID          string
	Score              int
	Comment            *string
	Status             DeliveryStatus
	Attempts           int
	NextAttemptAt      time.Time
	LastAttemptAt      *time.Time
	ResponseStatusCode *int
	ClaimedAt          *time.Time
	LastError          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsDue reports whether a pending delivery may be attempted at now.
func (d *WebhookDelivery) IsDue(now time.Time) bool {
	return d.Status == DeliveryStatusPending && !d.NextAttemptAt.After(now)
}

// DeliveryAttempt records a single send attempt for a delivery.
type DeliveryAttempt struct {
	ID            string
	DeliveryID    string
	AttemptNumber int
	StatusCode    *int
	ResponseBody  *string
	Error         *string
	DurationMs    int64
	Payload       []byte
	CreatedAt     time.Time
}

// IsSuccessStatus reports whether an HTTP status code counts as delivered.
func IsSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
