package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommissionLine is the fee charged on one order line item by the legacy per-line path.
// Rows are immutable once written.
type CommissionLine struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	OrderID      string    `gorm:"size:255;not null;index" json:"order_id"`
	ItemLineID   string    `gorm:"size:255;not null;uniqueIndex" json:"item_line_id"`
	RuleID       *uint     `gorm:"index" json:"rule_id,omitempty"` // nil when the configured default rate applied
	CurrencyCode string    `gorm:"size:3;not null" json:"currency_code"`
	Value        int64     `gorm:"not null" json:"value"` // smallest currency unit
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate ensures UUID is set
func (l *CommissionLine) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	return nil
}

func (CommissionLine) TableName() string {
	return "commission_lines"
}

// CommissionLineFilter represents filter criteria for commission line queries
type CommissionLineFilter struct {
	ID         *uint
	OrderID    *string
	ItemLineID *string
	RuleID     *uint
}
