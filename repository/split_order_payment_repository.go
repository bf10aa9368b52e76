package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SplitOrderPaymentRepositoryImpl implements SplitOrderPaymentRepository interface
type SplitOrderPaymentRepositoryImpl struct {
	*BaseRepository[models.SplitOrderPayment, models.SplitOrderPaymentFilter]
}

// NewSplitOrderPaymentRepository creates a new split payment repository
func NewSplitOrderPaymentRepository(db *gorm.DB) SplitOrderPaymentRepository {
	return &SplitOrderPaymentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SplitOrderPayment, models.SplitOrderPaymentFilter](db),
	}
}

func (r *SplitOrderPaymentRepositoryImpl) first(ctx context.Context, query string, args ...any) (*models.SplitOrderPayment, error) {
	db := r.getDB(ctx)
	var payment models.SplitOrderPayment
	err := db.Where(query, args...).Last(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ByUUID finds a split payment by UUID
func (r *SplitOrderPaymentRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.SplitOrderPayment, error) {
	return r.first(ctx, "uuid = ?", uuid)
}

// ByOrderID finds the split payment of an order
func (r *SplitOrderPaymentRepositoryImpl) ByOrderID(ctx context.Context, orderID string) (*models.SplitOrderPayment, error) {
	return r.first(ctx, "order_id = ?", orderID)
}

// ByPaymentIntentID finds the split payment bound to a gateway payment intent
func (r *SplitOrderPaymentRepositoryImpl) ByPaymentIntentID(ctx context.Context, intentID string) (*models.SplitOrderPayment, error) {
	return r.first(ctx, "payment_intent_id = ?", intentID)
}

// ListByPaymentCollectionID lists all split payments of one checkout
func (r *SplitOrderPaymentRepositoryImpl) ListByPaymentCollectionID(ctx context.Context, paymentCollectionID string) ([]*models.SplitOrderPayment, error) {
	db := r.getDB(ctx)
	var payments []*models.SplitOrderPayment
	err := db.Where("payment_collection_id = ?", paymentCollectionID).Order("id").Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ByIDForUpdate loads a split payment with SELECT ... FOR UPDATE.
// It must run inside a transaction started by WithTransaction.
func (r *SplitOrderPaymentRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.SplitOrderPayment, error) {
	tx, ok := ctx.Value(TxContextKey).(*gorm.DB)
	if !ok || tx == nil {
		return nil, fmt.Errorf("locking split payment %d requires a transaction", id)
	}

	var payment models.SplitOrderPayment
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock split payment %d: %w", id, err)
	}
	return &payment, nil
}

func (r *SplitOrderPaymentRepositoryImpl) ByFilter(ctx context.Context, filter models.SplitOrderPaymentFilter, orderBy string, limit, offset int) ([]*models.SplitOrderPayment, error) {
	db := r.getDB(ctx)
	var payments []*models.SplitOrderPayment
	q := r.applyFilter(db.Model(&models.SplitOrderPayment{}), filter)
	q = paginate(q, orderBy, "created_at DESC", limit, offset)
	if err := q.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *SplitOrderPaymentRepositoryImpl) Count(ctx context.Context, filter models.SplitOrderPaymentFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.SplitOrderPayment{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SplitOrderPaymentRepositoryImpl) Exists(ctx context.Context, filter models.SplitOrderPaymentFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SplitOrderPaymentRepositoryImpl) applyFilter(q *gorm.DB, filter models.SplitOrderPaymentFilter) *gorm.DB {
	if filter.ID != nil {
		q = q.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		q = q.Where("uuid = ?", *filter.UUID)
	}
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.PaymentCollectionID != nil {
		q = q.Where("payment_collection_id = ?", *filter.PaymentCollectionID)
	}
	if filter.PaymentIntentID != nil {
		q = q.Where("payment_intent_id = ?", *filter.PaymentIntentID)
	}
	if filter.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return q
}
