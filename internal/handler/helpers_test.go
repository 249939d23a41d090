package handler

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/service"
	"github.com/clicknps/webhook-engine/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stubDeliveryService struct {
	enqueueFn    func(ctx context.Context, resp domain.SurveyResponse) (*domain.WebhookDelivery, error)
	listRecentFn func(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error)
	attemptsFn   func(ctx context.Context, businessID, deliveryID string) ([]domain.DeliveryAttempt, error)
}

func (s *stubDeliveryService) Enqueue(ctx context.Context, resp domain.SurveyResponse) (*domain.WebhookDelivery, error) {
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, resp)
	}
	return nil, errors.New("not implemented")
}

func (s *stubDeliveryService) ListRecent(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error) {
	if s.listRecentFn != nil {
		return s.listRecentFn(ctx, businessID, limit)
	}
	return nil, nil
}

func (s *stubDeliveryService) Attempts(ctx context.Context, businessID, deliveryID string) ([]domain.DeliveryAttempt, error) {
	if s.attemptsFn != nil {
		return s.attemptsFn(ctx, businessID, deliveryID)
	}
	return nil, domain.ErrNotFound
}

type stubSettingsService struct {
	getFn       func(ctx context.Context, businessID string) (*domain.WebhookSettings, error)
	configureFn func(ctx context.Context, businessID, webhookURL string, rotateSecret bool) (*domain.WebhookSettings, error)
	disableFn   func(ctx context.Context, businessID string) error
}

func (s *stubSettingsService) Get(ctx context.Context, businessID string) (*domain.WebhookSettings, error) {
	if s.getFn != nil {
		return s.getFn(ctx, businessID)
	}
	return nil, domain.ErrNotFound
}

func (s *stubSettingsService) Configure(ctx context.Context, businessID, webhookURL string, rotateSecret bool) (*domain.WebhookSettings, error) {
	if s.configureFn != nil {
		return s.configureFn(ctx, businessID, webhookURL, rotateSecret)
	}
	return nil, errors.New("not implemented")
}

func (s *stubSettingsService) Disable(ctx context.Context, businessID string) error {
	if s.disableFn != nil {
		return s.disableFn(ctx, businessID)
	}
	return nil
}

type stubTester struct {
	sendFn func(ctx context.Context, businessID string) (*service.TestSendResult, error)
}

func (s *stubTester) Send(ctx context.Context, businessID string) (*service.TestSendResult, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, businessID)
	}
	return nil, domain.ErrWebhookNotConfigured
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
}

func newDeliveryTestApp(t *testing.T, svc DeliveryService) *fiber.App {
	t.Helper()

	app := newTestApp()
	if err := RegisterDeliveryRoutes(app, svc); err != nil {
		t.Fatalf("RegisterDeliveryRoutes() error = %v", err)
	}
	return app
}

func newWebhookTestApp(t *testing.T, settings WebhookSettingsService, tester WebhookTester) *fiber.App {
	t.Helper()

	app := newTestApp()
	if err := RegisterWebhookRoutes(app, settings, tester); err != nil {
		t.Fatalf("RegisterWebhookRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") && h.pingErr != nil {
			cmd.SetErr(h.pingErr)
			return h.pingErr
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}

type stubBroker struct {
	connected bool
}

func (b stubBroker) IsConnected() bool { return b.connected }
