// Package models contains the persisted entities of the commission and settlement engine
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	EntityType   string          `gorm:"size:64;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID     uint            `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audited entity types
const (
	AuditEntitySplitPayment   = "split_order_payment"
	AuditEntityCommissionRule = "commission_rule"
	AuditEntityCommissionLine = "commission_line"
)

// Audit action constants
const (
	AuditActionSplitPaymentCreated    = "split_payment_created"
	AuditActionPaymentInitiated       = "payment_initiated"
	AuditActionPaymentAuthorized      = "payment_authorized"
	AuditActionPaymentCaptured        = "payment_captured"
	AuditActionPaymentRefunded        = "payment_refunded"
	AuditActionPaymentFailed          = "payment_failed"
	AuditActionCommissionRuleCreated  = "commission_rule_created"
	AuditActionCommissionRuleUpdated  = "commission_rule_updated"
	AuditActionCommissionRuleDeleted  = "commission_rule_deleted"
	AuditActionCommissionLinesCreated = "commission_lines_created"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	Action        *string
	EntityType    *string
	EntityID      *uint
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsLedgerEvent reports whether the entry records a money movement on a split payment
func (a *AuditLog) IsLedgerEvent() bool {
	ledgerActions := map[string]bool{
		AuditActionPaymentAuthorized: true,
		AuditActionPaymentCaptured:   true,
		AuditActionPaymentRefunded:   true,
		AuditActionPaymentFailed:     true,
	}
	return ledgerActions[a.Action]
}
