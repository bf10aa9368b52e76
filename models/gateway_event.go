package models

import "time"

// GatewayEvent records a webhook delivery that has been applied to the ledger.
// The (intent_id, event_type) pair is unique, so a redelivered event is recognised and skipped.
type GatewayEvent struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SplitOrderPaymentID uint      `gorm:"not null;index" json:"split_order_payment_id"`
	IntentID            string    `gorm:"size:255;not null;uniqueIndex:uk_gateway_event_intent_type" json:"intent_id"`
	EventType           string    `gorm:"size:100;not null;uniqueIndex:uk_gateway_event_intent_type" json:"event_type"`
	Action              string    `gorm:"size:30;not null" json:"action"`
	Amount              int64     `gorm:"not null;default:0" json:"amount"`
	ProcessedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"processed_at"`
}

func (GatewayEvent) TableName() string {
	return "split_payment_gateway_events"
}

type GatewayEventFilter struct {
	ID                  *uint
	SplitOrderPaymentID *uint
	IntentID            *string
	EventType           *string
}
