package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a failed delivery attempt.
type ErrorKind string

const (
	// KindNetwork covers timeouts and connection failures; no status code.
	KindNetwork ErrorKind = "network"
	// KindHTTP is a non-2xx response.
	KindHTTP ErrorKind = "http"
)

// DeliveryError describes why an outbound webhook call did not succeed.
type DeliveryError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "webhook "+string(e.Kind)+" error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable reports whether the scheduler should try again. Every network or
// HTTP failure is retryable; cancellation of the caller's context is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

// StatusCodeOf extracts the HTTP status of a failed attempt, if any.
func StatusCodeOf(err error) (int, bool) {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.StatusCode > 0 {
		return deliveryErr.StatusCode, true
	}
	return 0, false
}
