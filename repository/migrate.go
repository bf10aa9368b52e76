package repository

import (
	"fmt"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the engine owns
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.CommissionRate{},
		&models.PriceAmount{},
		&models.CommissionRule{},
		&models.CommissionLine{},
		&models.SplitOrderPayment{},
		&models.GatewayEvent{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
