package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/ratelimit"
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/clicknps/webhook-engine/internal/webhook"
	"go.uber.org/zap"
)

const (
	testSurveyID  = "test_survey"
	testSubjectID = "test_subject"
	testScore     = 10
	testComment   = "This is a test webhook from ClickNPS"
)

// TestSendResult is returned to the UI after a manual test send.
type TestSendResult struct {
	Success    bool   `json:"success"`
	StatusCode *int   `json:"statusCode"`
	Body       string `json:"body"`
	Error      string `json:"error,omitempty"`
}

// TestSender performs a synchronous, unrecorded send to a business endpoint.
type TestSender struct {
	settings    repository.SettingsRepository
	sender      webhook.Sender
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	now         func() time.Time
}

func NewTestSender(
	settings repository.SettingsRepository,
	sender webhook.Sender,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*TestSender, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("webhook sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TestSender{
		settings:    settings,
		sender:      sender,
		rateLimiter: rateLimiter,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Send posts a sample payload signed with the business secret. Endpoint
// failures are reported in the result, not as an error.
func (t *TestSender) Send(ctx context.Context, businessID string) (*TestSendResult, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("%w: business_id is required", domain.ErrValidation)
	}

	settings, err := t.settings.Get(ctx, businessID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load webhook settings: %w", err)
	}
	if !settings.Enabled() {
		return nil, domain.ErrWebhookNotConfigured
	}

	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx, businessID); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	comment := testComment
	body, err := webhook.Payload{
		SurveyID:  testSurveyID,
		SubjectID: testSubjectID,
		Score:     testScore,
		Comment:   &comment,
		Timestamp: t.now(),
	}.Canonical()
	if err != nil {
		return nil, err
	}

	resp, sendErr := t.sender.Send(ctx, webhook.Request{
		URL:    settings.WebhookURL,
		Secret: settings.WebhookSecret,
		Body:   body,
	})
	if sendErr != nil && !webhook.IsRetryable(sendErr) && ctx.Err() != nil {
		return nil, sendErr
	}

	result := &TestSendResult{Success: sendErr == nil}
	if code := statusCodeOf(resp, sendErr); code > 0 {
		result.StatusCode = &code
	}
	if resp != nil {
		result.Body = resp.Body
	}
	if sendErr != nil {
		result.Error = sendErr.Error()
	}

	t.logger.Info("webhook test send",
		zap.String("businessId", businessID),
		zap.Bool("success", result.Success),
	)

	return result, nil
}
