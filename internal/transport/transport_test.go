package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
		wantLevel   zapcore.Level
	}{
		{
			name:        "client error keeps message",
			err:         fiber.NewError(fiber.StatusBadRequest, "score must be between 0 and 10"),
			wantCode:    fiber.StatusBadRequest,
			wantMessage: "score must be between 0 and 10",
			wantLevel:   zapcore.WarnLevel,
		},
		{
			name:        "unprocessable entity",
			err:         fiber.NewError(fiber.StatusUnprocessableEntity, "webhook not configured"),
			wantCode:    fiber.StatusUnprocessableEntity,
			wantMessage: "webhook not configured",
			wantLevel:   zapcore.WarnLevel,
		},
		{
			name:        "plain error is hidden",
			err:         errors.New("pq: connection refused"),
			wantCode:    fiber.StatusInternalServerError,
			wantMessage: "internal server error",
			wantLevel:   zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, recorded := observer.New(zapcore.DebugLevel)
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
			app.Get("/fail", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if body["error"] != tt.wantMessage {
				t.Fatalf("error = %q, want %q", body["error"], tt.wantMessage)
			}

			entries := recorded.All()
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Fatalf("log level = %s, want %s", entries[0].Level, tt.wantLevel)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(RequestID())
	app.Get("/id", func(c *fiber.Ctx) error {
		id, _ := observability.RequestIDFromContext(c.UserContext())
		return c.SendString(id)
	})

	t.Run("propagates caller id", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set(HeaderRequestID, "req-abc")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if string(body) != "req-abc" {
			t.Fatalf("context id = %q, want req-abc", string(body))
		}
		if got := resp.Header.Get(HeaderRequestID); got != "req-abc" {
			t.Fatalf("header = %q, want req-abc", got)
		}
	})

	t.Run("generates id when missing or oversized", func(t *testing.T) {
		t.Parallel()

		for _, incoming := range []string{"", strings.Repeat("x", maxRequestIDLength+1)} {
			req := httptest.NewRequest(http.MethodGet, "/id", nil)
			if incoming != "" {
				req.Header.Set(HeaderRequestID, incoming)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			got := resp.Header.Get(HeaderRequestID)
			if got == "" || got == incoming {
				t.Fatalf("header = %q, want generated id", got)
			}
			if string(body) != got {
				t.Fatalf("context id = %q, header = %q", string(body), got)
			}
		}
	})
}
