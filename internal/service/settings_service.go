package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/clicknps/webhook-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	secretPrefix = "whsec_"
	secretBytes  = 32
)

// WebhookSettingsService manages the per-business webhook URL and secret.
type WebhookSettingsService struct {
	settings repository.SettingsRepository
	logger   *zap.Logger
	now      func() time.Time
	random   io.Reader
}

func NewWebhookSettingsService(settings repository.SettingsRepository, logger *zap.Logger) (*WebhookSettingsService, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookSettingsService{
		settings: settings,
		logger:   logger,
		now:      time.Now,
		random:   rand.Reader,
	}, nil
}

func (s *WebhookSettingsService) Get(ctx context.Context, businessID string) (*domain.WebhookSettings, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("%w: business_id is required", domain.ErrValidation)
	}
	return s.settings.Get(ctx, businessID)
}

// Configure stores webhookURL for the business. A secret is generated the
// first time, or again when rotateSecret is set; otherwise the old one stays.
func (s *WebhookSettingsService) Configure(ctx context.Context, businessID, webhookURL string, rotateSecret bool) (*domain.WebhookSettings, error) {
	businessID = strings.TrimSpace(businessID)
	if err := domain.ValidateBusinessID(businessID); err != nil {
		return nil, err
	}
	if err := domain.ValidateWebhookURL(webhookURL); err != nil {
		return nil, err
	}

	current, err := s.settings.Get(ctx, businessID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load webhook settings: %w", err)
	}

	secret := ""
	if current != nil {
		secret = current.WebhookSecret
	}
	if secret == "" || rotateSecret {
		secret, err = s.generateSecret()
		if err != nil {
			return nil, err
		}
	}

	updated := &domain.WebhookSettings{
		BusinessID:    businessID,
		WebhookURL:    strings.TrimSpace(webhookURL),
		WebhookSecret: secret,
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.settings.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to store webhook settings: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("webhook settings updated",
		zap.String("businessId", businessID),
		zap.Bool("secretRotated", rotateSecret || current == nil || current.WebhookSecret == ""),
	)

	return updated, nil
}

// Disable clears the URL. The secret is kept so re-enabling does not force
// receivers to update their verification key.
func (s *WebhookSettingsService) Disable(ctx context.Context, businessID string) error {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return fmt.Errorf("%w: business_id is required", domain.ErrValidation)
	}
	if err := s.settings.ClearURL(ctx, businessID); err != nil {
		return err
	}

	observability.WithContextLogger(s.logger, ctx).Info("webhooks disabled", zap.String("businessId", businessID))
	return nil
}

func (s *WebhookSettingsService) generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}
