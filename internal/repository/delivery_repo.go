package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"gorm.io/gorm"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
)

// AttemptOutcome carries the result of a finished attempt into the store.
type AttemptOutcome struct {
	StatusCode  *int
	Error       *string
	AttemptedAt time.Time
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*domain.WebhookDelivery, error)
	GetByResponseID(ctx context.Context, responseID string) (*domain.WebhookDelivery, error)
	ListRecentByBusiness(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Release(ctx context.Context, id string) error
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	MarkDelivered(ctx context.Context, id string, outcome AttemptOutcome) error
	MarkRetry(ctx context.Context, id string, outcome AttemptOutcome, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, outcome AttemptOutcome) error
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
	var model WebhookDeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) GetByResponseID(ctx context.Context, responseID string) (*domain.WebhookDelivery, error) {
	var model WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("response_id = ?", responseID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ListRecentByBusiness(ctx context.Context, businessID string, limit int) ([]domain.WebhookDelivery, error) {
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	var models []WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return deliveriesToDomain(models), nil
}

func (r *GormDeliveryRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	var models []WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.DeliveryStatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return deliveriesToDomain(models), nil
}

// Claim moves a due pending delivery to processing. Only one caller can win;
// the others get false.
func (r *GormDeliveryRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", id, domain.DeliveryStatusPending, now).
		Updates(map[string]any{
			"status":     domain.DeliveryStatusProcessing,
			"claimed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release returns a claimed delivery to pending without consuming an attempt.
func (r *GormDeliveryRepo) Release(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryStatusProcessing).
		Updates(map[string]any{
			"status":     domain.DeliveryStatusPending,
			"claimed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("status = ? AND claimed_at < ?", domain.DeliveryStatusProcessing, claimedBefore).
		Updates(map[string]any{
			"status":     domain.DeliveryStatusPending,
			"claimed_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string, outcome AttemptOutcome) error {
	return r.finishAttempt(ctx, id, outcome, map[string]any{
		"status": domain.DeliveryStatusDelivered,
	})
}

func (r *GormDeliveryRepo) MarkRetry(ctx context.Context, id string, outcome AttemptOutcome, nextAttemptAt time.Time) error {
	return r.finishAttempt(ctx, id, outcome, map[string]any{
		"status":          domain.DeliveryStatusPending,
		"next_attempt_at": nextAttemptAt,
	})
}

func (r *GormDeliveryRepo) MarkFailed(ctx context.Context, id string, outcome AttemptOutcome) error {
	return r.finishAttempt(ctx, id, outcome, map[string]any{
		"status": domain.DeliveryStatusFailed,
	})
}

// finishAttempt applies an attempt result to a delivery this worker still holds.
func (r *GormDeliveryRepo) finishAttempt(ctx context.Context, id string, outcome AttemptOutcome, updates map[string]any) error {
	updates["attempts"] = gorm.Expr("attempts + 1")
	updates["last_attempt_at"] = outcome.AttemptedAt
	updates["response_status_code"] = outcome.StatusCode
	updates["last_error"] = outcome.Error
	updates["claimed_at"] = nil

	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func deliveriesToDomain(models []WebhookDeliveryModel) []domain.WebhookDelivery {
	deliveries := make([]domain.WebhookDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries
}

// IsUniqueViolation reports whether err came from a unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
