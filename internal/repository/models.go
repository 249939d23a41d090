package repository

import (
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"gorm.io/datatypes"
)

// WebhookDeliveryModel is the persistence model for the webhook_deliveries table.
type WebhookDeliveryModel struct {
	ID                 string                `gorm:"type:uuid;primaryKey"`
	ResponseID         string                `gorm:"size:64;not null;uniqueIndex:idx_webhook_deliveries_response_id"`
	BusinessID         string                `gorm:"size:64;not null"`
	SurveyID           string                `gorm:"size:64;not null"`
	SubjectID          string                `gorm:"size:255;not null"`
	Score              int                   `gorm:"not null"`
	Comment            *string               `gorm:"type:text"`
	Status             domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	Attempts           int                   `gorm:"not null;default:0"`
	NextAttemptAt      time.Time             `gorm:"not null"`
	LastAttemptAt      *time.Time
	ResponseStatusCode *int `gorm:"type:int"`
	ClaimedAt          *time.Time
	LastError          *string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// DeliveryAttemptModel is the persistence model for webhook_delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	DeliveryID    string         `gorm:"type:uuid;not null"`
	AttemptNumber int            `gorm:"not null"`
	StatusCode    *int           `gorm:"type:int"`
	ResponseBody  *string        `gorm:"type:text"`
	Error         *string        `gorm:"type:text"`
	DurationMs    int64          `gorm:"not null;default:0"`
	Payload       datatypes.JSON
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "webhook_delivery_attempts"
}

// WebhookSettingsModel is the persistence model for business_webhook_settings.
type WebhookSettingsModel struct {
	BusinessID    string `gorm:"size:64;primaryKey"`
	WebhookURL    string `gorm:"type:varchar(2048);not null;default:''"`
	WebhookSecret string `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (WebhookSettingsModel) TableName() string {
	return "business_webhook_settings"
}

func deliveryModelFromDomain(d *domain.WebhookDelivery) *WebhookDeliveryModel {
	if d == nil {
		return nil
	}

	return &WebhookDeliveryModel{
		ID:                 d.ID,
		ResponseID:         d.ResponseID,
		BusinessID:         d.BusinessID,
		SurveyID:           d.SurveyID,
		SubjectID:          d.SubjectID,
		Score:              d.Score,
		Comment:            d.Comment,
		Status:             d.Status,
		Attempts:           d.Attempts,
		NextAttemptAt:      d.NextAttemptAt,
		LastAttemptAt:      d.LastAttemptAt,
		ResponseStatusCode: d.ResponseStatusCode,
		ClaimedAt:          d.ClaimedAt,
		LastError:          d.LastError,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *WebhookDeliveryModel) *domain.WebhookDelivery {
	if m == nil {
		return nil
	}

	return &domain.WebhookDelivery{
		ID:                 m.ID,
		ResponseID:         m.ResponseID,
		BusinessID:         m.BusinessID,
		SurveyID:           m.SurveyID,
		SubjectID:          m.SubjectID,
		Score:              m.Score,
		Comment:            m.Comment,
		Status:             m.Status,
		Attempts:           m.Attempts,
		NextAttemptAt:      m.NextAttemptAt,
		LastAttemptAt:      m.LastAttemptAt,
		ResponseStatusCode: m.ResponseStatusCode,
		ClaimedAt:          m.ClaimedAt,
		LastError:          m.LastError,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	var payload datatypes.JSON
	if len(a.Payload) > 0 {
		payload = datatypes.JSON(append([]byte(nil), a.Payload...))
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		DeliveryID:    a.DeliveryID,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		DurationMs:    a.DurationMs,
		Payload:       payload,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		DeliveryID:    m.DeliveryID,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		DurationMs:    m.DurationMs,
		Payload:       []byte(m.Payload),
		CreatedAt:     m.CreatedAt,
	}
}

func settingsModelToDomain(m *WebhookSettingsModel) *domain.WebhookSettings {
	if m == nil {
		return nil
	}

	return &domain.WebhookSettings{
		BusinessID:    m.BusinessID,
		WebhookURL:    m.WebhookURL,
		WebhookSecret: m.WebhookSecret,
		UpdatedAt:     m.UpdatedAt,
	}
}
