package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultTimeout = 10 * time.Second

	// DeliveryIDHeader lets receivers deduplicate redelivered events.
	DeliveryIDHeader = "X-ClickNPS-Delivery"

	userAgent            = "ClickNPS-Webhooks/1.0"
	maxResponseBodyChars = 2048
)

// Request is a single signed POST to a business endpoint.
type Request struct {
	URL        string
	Secret     string
	Body       []byte
	DeliveryID string
}

// Response stores call metadata for the attempt log and the test-send result.
type Response struct {
	StatusCode int
	Body       string
	Signature  string
	Duration   time.Duration
}

// Sender is the outbound webhook delivery port.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// RestySender posts signed payloads with a hard per-call timeout.
type RestySender struct {
	client  *resty.Client
	timeout time.Duration
	now     func() time.Time
}

func NewRestySender(timeout time.Duration) *RestySender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", userAgent)

	sender, _ := NewRestySenderWithClient(client, timeout)
	return sender
}

func NewRestySenderWithClient(client *resty.Client, timeout time.Duration) (*RestySender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(timeout)
	}
	client.SetRetryCount(0)

	return &RestySender{
		client:  client,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

func (s *RestySender) Send(ctx context.Context, req Request) (*Response, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("webhook sender is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := strings.TrimSpace(req.URL)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, &DeliveryError{
			Kind:    KindNetwork,
			Message: "invalid webhook url",
			Cause:   err,
		}
	}

	signature := Sign(req.Secret, req.Body)

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := s.client.R().
		SetContext(sendCtx).
		SetHeader("Content-Type", "application/json").
		SetHeader(SignatureHeader, signature).
		SetBody(req.Body)
	if id := strings.TrimSpace(req.DeliveryID); id != "" {
		r.SetHeader(DeliveryIDHeader, id)
	}

	start := s.now()
	response, err := r.Post(endpoint)
	elapsed := s.now().Sub(start)

	if err != nil {
		// Parent cancellation is shutdown, not an endpoint failure.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("webhook send canceled: %w", ctx.Err())
		}
		return &Response{Signature: signature, Duration: elapsed}, &DeliveryError{
			Kind:    KindNetwork,
			Message: "webhook request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return &Response{Signature: signature, Duration: elapsed}, &DeliveryError{
			Kind:    KindNetwork,
			Message: "webhook returned empty response",
		}
	}

	result := &Response{
		StatusCode: response.StatusCode(),
		Body:       truncate(strings.TrimSpace(response.String()), maxResponseBodyChars),
		Signature:  signature,
		Duration:   elapsed,
	}

	if domain.IsSuccessStatus(result.StatusCode) {
		return result, nil
	}

	return result, &DeliveryError{
		Kind:       KindHTTP,
		StatusCode: result.StatusCode,
		Message:    fmt.Sprintf("endpoint returned status %d", result.StatusCode),
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
