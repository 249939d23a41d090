package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

type WebhookSettingsService interface {
	Get(ctx context.Context, businessID string) (*domain.WebhookSettings, error)
	Configure(ctx context.Context, businessID, webhookURL string, rotateSecret bool) (*domain.WebhookSettings, error)
	Disable(ctx context.Context, businessID string) error
}

type WebhookTester interface {
	Send(ctx context.Context, businessID string) (*service.TestSendResult, error)
}

type WebhookHandler struct {
	settings WebhookSettingsService
	tester   WebhookTester
}

func NewWebhookHandler(settings WebhookSettingsService, tester WebhookTester) (*WebhookHandler, error) {
	if settings == nil {
		return nil, fmt.Errorf("webhook settings service is required")
	}
	if tester == nil {
		return nil, fmt.Errorf("webhook tester is required")
	}
	return &WebhookHandler{settings: settings, tester: tester}, nil
}

func RegisterWebhookRoutes(router fiber.Router, settings WebhookSettingsService, tester WebhookTester) error {
	h, err := NewWebhookHandler(settings, tester)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/businesses/:businessId")
	v1.Get("/webhook", h.GetSettings)
	v1.Put("/webhook", h.ConfigureWebhook)
	v1.Delete("/webhook", h.DisableWebhook)
	v1.Post("/webhook/test", h.TestWebhook)

	return nil
}

type configureWebhookRequest struct {
	WebhookURL   string `json:"webhookUrl"`
	RotateSecret bool   `json:"rotateSecret"`
}

type webhookSettingsResponse struct {
	BusinessID    string    `json:"businessId"`
	WebhookURL    string    `json:"webhookUrl"`
	WebhookSecret string    `json:"webhookSecret"`
	Enabled       bool      `json:"enabled"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (h *WebhookHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.Get(c.UserContext(), strings.TrimSpace(c.Params("businessId")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSettingsResponse(settings))
}

func (h *WebhookHandler) ConfigureWebhook(c *fiber.Ctx) error {
	var req configureWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	settings, err := h.settings.Configure(c.UserContext(), strings.TrimSpace(c.Params("businessId")), req.WebhookURL, req.RotateSecret)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSettingsResponse(settings))
}

func (h *WebhookHandler) DisableWebhook(c *fiber.Ctx) error {
	if err := h.settings.Disable(c.UserContext(), strings.TrimSpace(c.Params("businessId"))); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TestWebhook sends a sample payload synchronously. Endpoint failures are
// reported in the body with a 200 status.
func (h *WebhookHandler) TestWebhook(c *fiber.Ctx) error {
	result, err := h.tester.Send(c.UserContext(), strings.TrimSpace(c.Params("businessId")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func toSettingsResponse(s *domain.WebhookSettings) webhookSettingsResponse {
	return webhookSettingsResponse{
		BusinessID:    s.BusinessID,
		WebhookURL:    s.WebhookURL,
		WebhookSecret: s.WebhookSecret,
		Enabled:       s.Enabled(),
		UpdatedAt:     s.UpdatedAt,
	}
}
