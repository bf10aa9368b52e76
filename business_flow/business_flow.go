package businessflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/amirphl/marketplace-settlement/utils"
	"gorm.io/gorm"
)

// ClientMetadata holds caller information recorded with audit entries
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Source     string            `json:"source,omitempty"` // api, webhook
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// auditor writes audit entries; a failed write is logged and never fails the caller.
// Entries are written outside any transaction carried by ctx.
type auditor struct {
	repo   repository.AuditLogRepository
	logger *slog.Logger
}

type auditBatchKey struct{}

type queuedAudit struct {
	by    auditor
	audit *models.AuditLog
}

// auditBatch holds entries recorded inside a transaction until it has finished
type auditBatch struct {
	mu      sync.Mutex
	entries []queuedAudit
}

// withAuditBatch makes record queue entries on the returned batch instead of writing them
func withAuditBatch(ctx context.Context) (context.Context, *auditBatch) {
	b := &auditBatch{}
	return context.WithValue(ctx, auditBatchKey{}, b), b
}

// withoutTx hides the transaction carried by ctx from the repositories
func withoutTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, repository.TxContextKey, (*gorm.DB)(nil))
}

func (a auditor) record(ctx context.Context, entityType string, entityID uint, action, description string, cause error, metadata *ClientMetadata) {
	if a.repo == nil {
		return
	}

	audit := &models.AuditLog{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: &description,
		Success:     utils.ToPtr(cause == nil),
	}
	if cause != nil {
		msg := cause.Error()
		audit.ErrorMessage = &msg
	}

	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = utils.ToPtr(metadata.RequestID)
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			audit.Metadata = raw
		}
	}

	if b, ok := ctx.Value(auditBatchKey{}).(*auditBatch); ok {
		b.mu.Lock()
		b.entries = append(b.entries, queuedAudit{by: a, audit: audit})
		b.mu.Unlock()
		return
	}
	a.write(ctx, audit)
}

// flush writes the queued entries once their transaction has finished.
// A rolled back transaction keeps only the entries that describe a failure.
func (b *auditBatch) flush(ctx context.Context, committed bool) {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	for _, q := range entries {
		if committed || q.audit.IsFailed() {
			q.by.write(ctx, q.audit)
		}
	}
}

func (a auditor) write(ctx context.Context, audit *models.AuditLog) {
	if err := a.repo.Save(withoutTx(ctx), audit); err != nil && a.logger != nil {
		a.logger.Warn("failed to write audit log", "action", audit.Action, "entity_type", audit.EntityType, "entity_id", audit.EntityID, "error", err)
	}
}

// ToSplitPaymentDTO converts a split payment ledger row to its API view
func ToSplitPaymentDTO(p *models.SplitOrderPayment) dto.SplitPaymentDTO {
	out := dto.SplitPaymentDTO{
		ID:                  p.UUID.String(),
		OrderID:             p.OrderID,
		PaymentCollectionID: p.PaymentCollectionID,
		Status:              string(p.Status),
		CurrencyCode:        p.CurrencyCode,
		AuthorizedAmount:    p.AuthorizedAmount,
		CapturedAmount:      p.CapturedAmount,
		RefundedAmount:      p.RefundedAmount,
		PlatformFee:         p.PlatformFee,
		PaymentIntentID:     p.PaymentIntentID,
		CaptureMode:         string(p.CaptureMode),
		CreatedAt:           p.CreatedAt.UTC(),
		UpdatedAt:           p.UpdatedAt.UTC(),
	}
	if p.PlatformFeeMode != nil {
		out.PlatformFeeMode = utils.ToPtr(string(*p.PlatformFeeMode))
	}
	return out
}

// ToCommissionRuleDTO converts a commission rule to its API view
func ToCommissionRuleDTO(r *models.CommissionRule) dto.CommissionRuleDTO {
	out := dto.CommissionRuleDTO{
		ID:          r.UUID.String(),
		Name:        r.Name,
		Reference:   string(r.Reference),
		ReferenceID: r.ReferenceID,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if scope, err := r.Scope(); err == nil {
		out.RefValue = scope.String()
	}
	if r.Rate != nil {
		out.Rate = &dto.CommissionRateDTO{
			ID:             r.Rate.UUID.String(),
			Type:           string(r.Rate.Type),
			PercentageRate: r.Rate.PercentageRate,
			IncludeTax:     r.Rate.IncludeTax,
			PriceSetID:     r.Rate.PriceSetID,
			MinPriceSetID:  r.Rate.MinPriceSetID,
			MaxPriceSetID:  r.Rate.MaxPriceSetID,
		}
	}
	return out
}
