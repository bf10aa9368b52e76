package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionRateType determines how a rate turns a line price into a fee
type CommissionRateType string

const (
	CommissionRateTypePercentage CommissionRateType = "percentage"
	CommissionRateTypeFixed      CommissionRateType = "fixed"
)

// ErrInvalidCommissionRate is returned by Validate for rates whose shape cannot produce a fee
var ErrInvalidCommissionRate = errors.New("invalid commission rate")

var hundred = decimal.NewFromInt(100)

// CommissionRate describes the fee a commission rule charges
type CommissionRate struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	Type           CommissionRateType `gorm:"type:varchar(20);not null" json:"type"`
	PercentageRate *decimal.Decimal   `gorm:"type:decimal(7,4)" json:"percentage_rate,omitempty"` // 0..100
	IncludeTax     bool               `gorm:"not null;default:false" json:"include_tax"`

	// Price set references resolve to a per-currency amount through commission_price_amounts
	PriceSetID    *string `gorm:"size:255" json:"price_set_id,omitempty"`     // fixed fee amount
	MinPriceSetID *string `gorm:"size:255" json:"min_price_set_id,omitempty"` // lower fee bound
	MaxPriceSetID *string `gorm:"size:255" json:"max_price_set_id,omitempty"` // upper fee bound

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate ensures UUID is set
func (cr *CommissionRate) BeforeCreate(tx *gorm.DB) error {
	if cr.UUID == uuid.Nil {
		cr.UUID = uuid.New()
	}
	return nil
}

// Validate checks that the rate can produce a fee
func (cr *CommissionRate) Validate() error {
	switch cr.Type {
	case CommissionRateTypePercentage:
		if cr.PercentageRate == nil {
			return fmt.Errorf("%w: percentage rate is missing", ErrInvalidCommissionRate)
		}
		if cr.PercentageRate.IsNegative() || cr.PercentageRate.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage rate %s is outside [0,100]", ErrInvalidCommissionRate, cr.PercentageRate.String())
		}
	case CommissionRateTypeFixed:
		if cr.PriceSetID == nil || *cr.PriceSetID == "" {
			return fmt.Errorf("%w: fixed rate has no price set", ErrInvalidCommissionRate)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommissionRate, cr.Type)
	}
	return nil
}

// TableName specifies the table name for GORM
func (CommissionRate) TableName() string {
	return "commission_rates"
}

// CommissionRateFilter represents filter criteria for commission rate queries
type CommissionRateFilter struct {
	ID         *uint               `json:"id,omitempty"`
	UUID       *uuid.UUID          `json:"uuid,omitempty"`
	Type       *CommissionRateType `json:"type,omitempty"`
	IncludeTax *bool               `json:"include_tax,omitempty"`
}
