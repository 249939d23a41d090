package repository

import (
	"context"
	"errors"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository interface {
	Get(ctx context.Context, businessID string) (*domain.WebhookSettings, error)
	Upsert(ctx context.Context, settings *domain.WebhookSettings) error
	ClearURL(ctx context.Context, businessID string) error
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) Get(ctx context.Context, businessID string) (*domain.WebhookSettings, error) {
	var model WebhookSettingsModel
	err := r.db.WithContext(ctx).First(&model, "business_id = ?", businessID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settingsModelToDomain(&model), nil
}

func (r *GormSettingsRepo) Upsert(ctx context.Context, settings *domain.WebhookSettings) error {
	if settings == nil {
		return nil
	}

	now := time.Now().UTC()
	model := &WebhookSettingsModel{
		BusinessID:    settings.BusinessID,
		WebhookURL:    settings.WebhookURL,
		WebhookSecret: settings.WebhookSecret,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"webhook_url", "webhook_secret", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	settings.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormSettingsRepo) ClearURL(ctx context.Context, businessID string) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookSettingsModel{}).
		Where("business_id = ?", businessID).
		Update("webhook_url", "")
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
