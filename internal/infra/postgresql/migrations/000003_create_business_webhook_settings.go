package migrations

import (
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createWebhookSettingsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_business_webhook_settings",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.WebhookSettingsModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookSettingsModel{})
		},
	}
}
