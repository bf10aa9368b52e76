// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// TxManager runs a function inside one database transaction.
// Repositories called with the context passed to fn join that transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

type gormTxManager struct {
	db *gorm.DB
}

// NewTxManager creates a TxManager backed by gorm
func NewTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

func (m *gormTxManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return WithTransaction(ctx, m.db, fn)
}

// CommissionRateRepository defines operations for commission rates
type CommissionRateRepository interface {
	Repository[models.CommissionRate, models.CommissionRateFilter]
	ByUUID(ctx context.Context, uuid string) (*models.CommissionRate, error)
	Update(ctx context.Context, rate *models.CommissionRate) error
}

// CommissionRuleRepository defines operations for commission rules
type CommissionRuleRepository interface {
	Repository[models.CommissionRule, models.CommissionRuleFilter]
	ByUUID(ctx context.Context, uuid string) (*models.CommissionRule, error)
	// ByScope returns the non-deleted rule stored for the scope, active or not
	ByScope(ctx context.Context, scope models.RuleScope) (*models.CommissionRule, error)
	// ActiveByScopes returns every active, non-deleted rule whose scope is one of scopes, with Rate loaded
	ActiveByScopes(ctx context.Context, scopes []models.RuleScope) ([]*models.CommissionRule, error)
	Update(ctx context.Context, rule *models.CommissionRule) error
	SoftDelete(ctx context.Context, id uint) error
}

// CommissionLineRepository defines operations for legacy commission lines
type CommissionLineRepository interface {
	Repository[models.CommissionLine, models.CommissionLineFilter]
	ByOrderID(ctx context.Context, orderID string) ([]*models.CommissionLine, error)
	ByItemLineIDs(ctx context.Context, itemLineIDs []string) ([]*models.CommissionLine, error)
}

// PriceAmountRepository resolves price sets to per-currency amounts
type PriceAmountRepository interface {
	Repository[models.PriceAmount, models.PriceAmountFilter]
	AmountFor(ctx context.Context, priceSetID, currencyCode string) (int64, bool, error)
}

// SplitOrderPaymentRepository defines operations for split payment ledger rows
type SplitOrderPaymentRepository interface {
	Repository[models.SplitOrderPayment, models.SplitOrderPaymentFilter]
	ByUUID(ctx context.Context, uuid string) (*models.SplitOrderPayment, error)
	ByOrderID(ctx context.Context, orderID string) (*models.SplitOrderPayment, error)
	ByPaymentIntentID(ctx context.Context, intentID string) (*models.SplitOrderPayment, error)
	ListByPaymentCollectionID(ctx context.Context, paymentCollectionID string) ([]*models.SplitOrderPayment, error)
	// ByIDForUpdate locks the row until the surrounding transaction ends
	ByIDForUpdate(ctx context.Context, id uint) (*models.SplitOrderPayment, error)
	Update(ctx context.Context, payment *models.SplitOrderPayment) error
}

// GatewayEventRepository defines operations for processed webhook events
type GatewayEventRepository interface {
	Repository[models.GatewayEvent, models.GatewayEventFilter]
	ByIntentAndType(ctx context.Context, intentID, eventType string) (*models.GatewayEvent, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByEntity(ctx context.Context, entityType string, entityID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
