package dto

import "time"

// ListAuditLogsRequest filters the admin audit trail.
// SplitPaymentID and EntityType with EntityID select one entity; the other filters narrow the list.
type ListAuditLogsRequest struct {
	SplitPaymentID *string `query:"split_payment_id" validate:"omitempty,uuid"`
	EntityType     *string `query:"entity_type" validate:"omitempty,max=64"`
	EntityID       *uint   `query:"entity_id" validate:"required_with=EntityType"`
	Action         *string `query:"action" validate:"omitempty,max=64"`
	Failed         bool    `query:"failed"`
	Page           int     `query:"page" validate:"omitempty,min=1"`
	PageSize       int     `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// AuditLogDTO is the API view of an audit entry
type AuditLogDTO struct {
	ID           uint      `json:"id"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityID     uint      `json:"entity_id"`
	Description  *string   `json:"description,omitempty"`
	RequestID    *string   `json:"request_id,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListAuditLogsResponse is one page of audit entries, newest first
type ListAuditLogsResponse struct {
	Logs     []AuditLogDTO `json:"logs"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}
