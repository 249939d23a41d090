package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/queue"
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/gofiber/fiber/v2"
)

type DeliveryService interface {
	Enqueue(ctx context.Context, resp domain.SurveyResponse) (*domain.WebhookDelivery, error)
	ListRecent(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error)
	Attempts(ctx context.Context, businessID, deliveryID string) ([]domain.DeliveryAttempt, error)
}

type DeliveryHandler struct {
	service DeliveryService
}

func NewDeliveryHandler(service DeliveryService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DeliveryService) error {
	h, err := NewDeliveryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/responses", h.IngestResponse)
	v1.Get("/businesses/:businessId/webhook-deliveries", h.ListDeliveries)
	v1.Get("/businesses/:businessId/webhook-deliveries/:deliveryId/attempts", h.ListAttempts)

	return nil
}

type deliveryResponse struct {
	ID                 string     `json:"id"`
	ResponseID         string     `json:"responseId"`
	BusinessID         string     `json:"businessId"`
	SurveyID           string     `json:"surveyId"`
	SubjectID          string     `json:"subjectId"`
	Score              int        `json:"score"`
	Comment            *string    `json:"comment"`
	Status             string     `json:"status"`
	Attempts           int        `json:"attempts"`
	NextAttemptAt      time.Time  `json:"nextAttemptAt"`
	LastAttemptAt      *time.Time `json:"lastAttemptAt"`
	ResponseStatusCode *int       `json:"responseStatusCode"`
	LastError          *string    `json:"lastError,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Limit int `json:"limit"`
	Count int `json:"count"`
}

type attemptResponse struct {
	AttemptNumber int       `json:"attemptNumber"`
	StatusCode    *int      `json:"statusCode"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	Error         *string   `json:"error,omitempty"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IngestResponse enqueues a delivery for a submitted survey response. A
// business without a webhook gets 202 with queued=false.
func (h *DeliveryHandler) IngestResponse(c *fiber.Ctx) error {
	var req queue.SurveyResponseMessage
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	delivery, err := h.service.Enqueue(c.UserContext(), req.ToDomain())
	if errors.Is(err, domain.ErrWebhookNotConfigured) {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": false})
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	businessID := strings.TrimSpace(c.Params("businessId"))
	limit := c.QueryInt("limit", repository.DefaultRecentLimit)
	if limit < 1 || limit > repository.MaxRecentLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, repository.MaxRecentLimit))
	}

	deliveries, err := h.service.ListRecent(c.UserContext(), businessID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		data = append(data, toDeliveryResponse(&deliveries[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{Limit: limit, Count: len(data)},
	})
}

func (h *DeliveryHandler) ListAttempts(c *fiber.Ctx) error {
	businessID := strings.TrimSpace(c.Params("businessId"))
	deliveryID := strings.TrimSpace(c.Params("deliveryId"))

	attempts, err := h.service.Attempts(c.UserContext(), businessID, deliveryID)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		data = append(data, attemptResponse{
			AttemptNumber: a.AttemptNumber,
			StatusCode:    a.StatusCode,
			ResponseBody:  a.ResponseBody,
			Error:         a.Error,
			DurationMs:    a.DurationMs,
			CreatedAt:     a.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func toDeliveryResponse(d *domain.WebhookDelivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:                 d.ID,
		ResponseID:         d.ResponseID,
		BusinessID:         d.BusinessID,
		SurveyID:           d.SurveyID,
		SubjectID:          d.SubjectID,
		Score:              d.Score,
		Comment:            d.Comment,
		Status:             d.Status.String(),
		Attempts:           d.Attempts,
		NextAttemptAt:      d.NextAttemptAt,
		LastAttemptAt:      d.LastAttemptAt,
		ResponseStatusCode: d.ResponseStatusCode,
		LastError:          d.LastError,
		CreatedAt:          d.CreatedAt,
	}
}
