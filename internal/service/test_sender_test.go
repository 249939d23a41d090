package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/webhook"
	"go.uber.org/zap"
)

func TestTestSenderSendSuccessPersistsNothing(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(webhook.SignatureHeader)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("thanks"))
	}))
	t.Cleanup(server.Close)

	upserts := 0
	settings := configuredSettings(server.URL)
	settings.upsertFn = func(ctx context.Context, s *domain.WebhookSettings) error {
		upserts++
		return nil
	}

	sender, err := NewTestSender(settings, webhook.NewRestySender(2*time.Second), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTestSender() error = %v", err)
	}
	sender.now = func() time.Time { return responseTime }

	result, err := sender.Send(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !result.Success {
		t.Fatalf("success = false, error = %s", result.Error)
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusOK {
		t.Fatalf("statusCode = %v, want 200", result.StatusCode)
	}
	if result.Body != "thanks" {
		t.Fatalf("body = %q, want thanks", result.Body)
	}
	if !webhook.Verify("whsec_test", gotBody, gotSignature) {
		t.Fatal("signature does not verify against the sent body")
	}
	want := `{"comment":"This is a test webhook from ClickNPS","score":10,"subject_id":"test_subject","survey_id":"test_survey","timestamp":"2026-03-01T12:00:00.000Z"}`
	if string(gotBody) != want {
		t.Fatalf("body = %s, want %s", gotBody, want)
	}
	if upserts != 0 {
		t.Fatal("test send must not write settings")
	}
}

func TestTestSenderSendReportsEndpointFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	t.Cleanup(server.Close)

	sender, err := NewTestSender(configuredSettings(server.URL), webhook.NewRestySender(2*time.Second), nil, nil)
	if err != nil {
		t.Fatalf("NewTestSender() error = %v", err)
	}

	result, err := sender.Send(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Success {
		t.Fatal("success = true, want false")
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusBadGateway {
		t.Fatalf("statusCode = %v, want 502", result.StatusCode)
	}
	if result.Body != "upstream down" || result.Error == "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTestSenderSendNetworkFailureHasNoStatus(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{
		sendFn: func(ctx context.Context, req webhook.Request) (*webhook.Response, error) {
			return &webhook.Response{}, &webhook.DeliveryError{Kind: webhook.KindNetwork, Cause: errors.New("dial tcp: refused")}
		},
	}
	sender, err := NewTestSender(configuredSettings("https://example.com/hook"), fake, nil, nil)
	if err != nil {
		t.Fatalf("NewTestSender() error = %v", err)
	}

	result, err := sender.Send(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Success || result.StatusCode != nil || result.Error == "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTestSenderSendRequiresConfiguredWebhook(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{}
	sender, err := NewTestSender(&fakeSettingsRepo{}, fake, nil, nil)
	if err != nil {
		t.Fatalf("NewTestSender() error = %v", err)
	}

	if _, err := sender.Send(context.Background(), "biz-1"); !errors.Is(err, domain.ErrWebhookNotConfigured) {
		t.Fatalf("Send() error = %v, want ErrWebhookNotConfigured", err)
	}
	if fake.callCount() != 0 {
		t.Fatal("no request should be made")
	}
}

func TestTestSenderSendWaitsForRateLimit(t *testing.T) {
	t.Parallel()

	waited := ""
	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, businessID string) error {
			waited = businessID
			return nil
		},
	}
	sender, err := NewTestSender(configuredSettings("https://example.com/hook"), &fakeSender{}, limiter, nil)
	if err != nil {
		t.Fatalf("NewTestSender() error = %v", err)
	}

	if _, err := sender.Send(context.Background(), "biz-7"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if waited != "biz-7" {
		t.Fatalf("rate limiter waited for %q, want biz-7", waited)
	}
}
