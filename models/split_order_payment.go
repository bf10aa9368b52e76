package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SplitPaymentStatus represents the lifecycle state of a split order payment
type SplitPaymentStatus string

const (
	SplitPaymentStatusPending           SplitPaymentStatus = "pending"            // Created at checkout, nothing authorized yet
	SplitPaymentStatusAuthorized        SplitPaymentStatus = "authorized"         // Gateway holds funds
	SplitPaymentStatusCaptured          SplitPaymentStatus = "captured"           // Funds collected
	SplitPaymentStatusPartiallyRefunded SplitPaymentStatus = "partially_refunded" // Some of the captured amount returned
	SplitPaymentStatusRefunded          SplitPaymentStatus = "refunded"           // Captured amount fully returned
	SplitPaymentStatusFailed            SplitPaymentStatus = "failed"             // Gateway declined the payment
)

// PlatformFeeMode decides who bears the platform fee
type PlatformFeeMode string

const (
	PlatformFeeModeOnTop    PlatformFeeMode = "on_top"   // Added to the customer price, withheld as application fee
	PlatformFeeModeIncluded PlatformFeeMode = "included" // Part of the nominal price, deducted from the seller payout
)

// Valid reports whether m is a known fee mode
func (m PlatformFeeMode) Valid() bool {
	return m == PlatformFeeModeOnTop || m == PlatformFeeModeIncluded
}

// CaptureMode tells the gateway when to collect authorized funds
type CaptureMode string

const (
	CaptureModeAutomatic CaptureMode = "automatic"
	CaptureModeManual    CaptureMode = "manual"
)

// SplitOrderPayment is the ledger row of one seller order inside a multi-seller checkout.
// All amounts are in the smallest currency unit. Rows are never deleted.
type SplitOrderPayment struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	OrderID      string             `gorm:"size:255;not null;uniqueIndex" json:"order_id"`
	Status       SplitPaymentStatus `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	CurrencyCode string             `gorm:"size:3;not null" json:"currency_code"`

	AuthorizedAmount int64            `gorm:"not null;default:0" json:"authorized_amount"`
	CapturedAmount   int64            `gorm:"not null;default:0" json:"captured_amount"` // gross customer charge
	RefundedAmount   int64            `gorm:"not null;default:0" json:"refunded_amount"`
	PlatformFee      int64            `gorm:"not null;default:0" json:"platform_fee"`
	PlatformFeeMode  *PlatformFeeMode `gorm:"type:varchar(20)" json:"platform_fee_mode,omitempty"`

	PaymentCollectionID string      `gorm:"size:255;not null;index" json:"payment_collection_id"`
	PaymentIntentID     *string     `gorm:"size:255;uniqueIndex" json:"payment_intent_id,omitempty"`
	DestinationAccount  *string     `gorm:"size:255" json:"destination_account,omitempty"`
	CaptureMode         CaptureMode `gorm:"type:varchar(20);not null;default:'automatic'" json:"capture_mode"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate ensures UUID is set
func (p *SplitOrderPayment) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	return nil
}

// RefundableAmount returns how much of the captured amount can still be refunded
func (p *SplitOrderPayment) RefundableAmount() int64 {
	return p.CapturedAmount - p.RefundedAmount
}

// IsCaptured reports whether funds have been collected (possibly partly refunded since)
func (p *SplitOrderPayment) IsCaptured() bool {
	switch p.Status {
	case SplitPaymentStatusCaptured, SplitPaymentStatusPartiallyRefunded, SplitPaymentStatusRefunded:
		return true
	}
	return false
}

func (SplitOrderPayment) TableName() string {
	return "split_order_payments"
}

// SplitOrderPaymentFilter represents filter criteria for split payment queries
type SplitOrderPaymentFilter struct {
	ID                  *uint               `json:"id,omitempty"`
	UUID                *uuid.UUID          `json:"uuid,omitempty"`
	OrderID             *string             `json:"order_id,omitempty"`
	Status              *SplitPaymentStatus `json:"status,omitempty"`
	PaymentCollectionID *string             `json:"payment_collection_id,omitempty"`
	PaymentIntentID     *string             `json:"payment_intent_id,omitempty"`
	CreatedAfter        *time.Time          `json:"created_after,omitempty"`
	CreatedBefore       *time.Time          `json:"created_before,omitempty"`
}
