package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateSplitPaymentRequest opens the ledger row of one seller order at checkout
type CreateSplitPaymentRequest struct {
	OrderID             string          `json:"order_id" validate:"required,max=255"`
	PaymentCollectionID string          `json:"payment_collection_id" validate:"required,max=255"`
	CurrencyCode        string          `json:"currency_code" validate:"required,len=3"`
	PlatformFee         decimal.Decimal `json:"platform_fee"`                                               // major units
	PlatformFeeMode     *string         `json:"platform_fee_mode,omitempty" validate:"omitempty,oneof=on_top included"`
}

// InitiatePaymentRequest opens a gateway payment intent for a split payment
type InitiatePaymentRequest struct {
	SplitPaymentID     string          `json:"-"`
	Amount             decimal.Decimal `json:"amount"` // major units, what the customer is charged
	DestinationAccount *string         `json:"destination_account,omitempty" validate:"omitempty,max=255"`
	RequiresApproval   bool            `json:"requires_approval"`
	Description        string          `json:"description,omitempty" validate:"max=500"`
}

// InitiatePaymentResponse carries what the storefront needs to confirm the payment
type InitiatePaymentResponse struct {
	SplitPayment   SplitPaymentDTO `json:"split_payment"`
	IntentID       string          `json:"intent_id"`
	ClientSecret   string          `json:"client_secret,omitempty"`
	ApplicationFee int64           `json:"application_fee"`
}

// RefundSplitPaymentRequest refunds part or all of a captured split payment
type RefundSplitPaymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"` // smallest currency unit
}

// RefundSplitPaymentResponse reports the ledger after a refund
type RefundSplitPaymentResponse struct {
	SplitPayment SplitPaymentDTO `json:"split_payment"`
	Refunded     int64           `json:"refunded"`
	FullRefund   bool            `json:"full_refund"`
	FeeReclaimed bool            `json:"fee_reclaimed"`
}

// CaptureOrderSetRequest captures every split payment of one checkout
type CaptureOrderSetRequest struct {
	PaymentCollectionID string `json:"payment_collection_id" validate:"required,max=255"`
	RequiresApproval    bool   `json:"requires_approval"`
}

// CaptureResult is the outcome of capturing one split payment of an order set
type CaptureResult struct {
	SplitPaymentID string `json:"split_payment_id"`
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	CapturedAmount int64  `json:"captured_amount"`
	Error          string `json:"error,omitempty"`
}

// CaptureOrderSetResponse lists the per payment outcomes of an order set capture
type CaptureOrderSetResponse struct {
	PaymentCollectionID string          `json:"payment_collection_id"`
	Skipped             bool            `json:"skipped"` // approval pending, nothing captured
	Results             []CaptureResult `json:"results"`
	Failed              int             `json:"failed"`
}

// WebhookResponse reports what a webhook delivery did to the ledger
type WebhookResponse struct {
	Action         string `json:"action"`
	Outcome        string `json:"outcome"` // applied, duplicate, unchanged, unknown_intent, ignored
	IntentID       string `json:"intent_id,omitempty"`
	SplitPaymentID string `json:"split_payment_id,omitempty"`
}

// PayoutResponse is the seller net of one order
type PayoutResponse struct {
	OrderID        string `json:"order_id"`
	SplitPaymentID string `json:"split_payment_id"`
	CurrencyCode   string `json:"currency_code"`
	CapturedAmount int64  `json:"captured_amount"`
	RefundedAmount int64  `json:"refunded_amount"`
	Fee            int64  `json:"fee"`
	FeeSource      string `json:"fee_source"` // platform_fee or commission_lines
	Payout         int64  `json:"payout"`     // may be negative
}

// SplitPaymentDTO is the API view of a split payment ledger row
type SplitPaymentDTO struct {
	ID                  string    `json:"id"`
	OrderID             string    `json:"order_id"`
	PaymentCollectionID string    `json:"payment_collection_id"`
	Status              string    `json:"status"`
	CurrencyCode        string    `json:"currency_code"`
	AuthorizedAmount    int64     `json:"authorized_amount"`
	CapturedAmount      int64     `json:"captured_amount"`
	RefundedAmount      int64     `json:"refunded_amount"`
	PlatformFee         int64     `json:"platform_fee"`
	PlatformFeeMode     *string   `json:"platform_fee_mode,omitempty"`
	PaymentIntentID     *string   `json:"payment_intent_id,omitempty"`
	CaptureMode         string    `json:"capture_mode"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
