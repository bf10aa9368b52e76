package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// PriceAmount is the amount a price set holds in one currency
type PriceAmount struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PriceSetID   string    `gorm:"size:255;not null;uniqueIndex:uk_price_amount_set_currency" json:"price_set_id"`
	CurrencyCode string    `gorm:"size:3;not null;uniqueIndex:uk_price_amount_set_currency" json:"currency_code"`
	Amount       int64     `gorm:"not null" json:"amount"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeSave stores currency codes in lower case
func (p *PriceAmount) BeforeSave(tx *gorm.DB) error {
	p.CurrencyCode = strings.ToLower(p.CurrencyCode)
	return nil
}

func (PriceAmount) TableName() string {
	return "commission_price_amounts"
}

type PriceAmountFilter struct {
	ID           *uint
	PriceSetID   *string
	CurrencyCode *string
}
