package migrations

import (
	"github.com/clicknps/webhook-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createWebhookDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_webhook_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookDeliveryModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_due ON webhook_deliveries (next_attempt_at) WHERE status = 'pending'`,
				`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_claimed ON webhook_deliveries (claimed_at) WHERE status = 'processing'`,
				`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_business_created ON webhook_deliveries (business_id, created_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookDeliveryModel{})
		},
	}
}
