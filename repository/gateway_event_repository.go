package repository

import (
	"context"
	"errors"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
)

// GatewayEventRepositoryImpl implements GatewayEventRepository interface
type GatewayEventRepositoryImpl struct {
	*BaseRepository[models.GatewayEvent, models.GatewayEventFilter]
}

// NewGatewayEventRepository creates a new gateway event repository
func NewGatewayEventRepository(db *gorm.DB) GatewayEventRepository {
	return &GatewayEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.GatewayEvent, models.GatewayEventFilter](db),
	}
}

// ByIntentAndType finds an already processed event
func (r *GatewayEventRepositoryImpl) ByIntentAndType(ctx context.Context, intentID, eventType string) (*models.GatewayEvent, error) {
	db := r.getDB(ctx)
	var event models.GatewayEvent
	err := db.Where("intent_id = ? AND event_type = ?", intentID, eventType).Last(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *GatewayEventRepositoryImpl) ByFilter(ctx context.Context, filter models.GatewayEventFilter, orderBy string, limit, offset int) ([]*models.GatewayEvent, error) {
	db := r.getDB(ctx)
	var events []*models.GatewayEvent
	q := r.applyFilter(db.Model(&models.GatewayEvent{}), filter)
	q = paginate(q, orderBy, "processed_at DESC", limit, offset)
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *GatewayEventRepositoryImpl) Count(ctx context.Context, filter models.GatewayEventFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.GatewayEvent{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GatewayEventRepositoryImpl) Exists(ctx context.Context, filter models.GatewayEventFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GatewayEventRepositoryImpl) applyFilter(q *gorm.DB, filter models.GatewayEventFilter) *gorm.DB {
	if filter.ID != nil {
		q = q.Where("id = ?", *filter.ID)
	}
	if filter.SplitOrderPaymentID != nil {
		q = q.Where("split_order_payment_id = ?", *filter.SplitOrderPaymentID)
	}
	if filter.IntentID != nil {
		q = q.Where("intent_id = ?", *filter.IntentID)
	}
	if filter.EventType != nil {
		q = q.Where("event_type = ?", *filter.EventType)
	}
	return q
}
