package repository

import (
	"context"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
)

// CommissionLineRepositoryImpl implements CommissionLineRepository interface
type CommissionLineRepositoryImpl struct {
	*BaseRepository[models.CommissionLine, models.CommissionLineFilter]
}

// NewCommissionLineRepository creates a new commission line repository
func NewCommissionLineRepository(db *gorm.DB) CommissionLineRepository {
	return &CommissionLineRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionLine, models.CommissionLineFilter](db),
	}
}

// ByOrderID lists the commission lines of an order
func (r *CommissionLineRepositoryImpl) ByOrderID(ctx context.Context, orderID string) ([]*models.CommissionLine, error) {
	db := r.getDB(ctx)
	var lines []*models.CommissionLine
	err := db.Where("order_id = ?", orderID).Order("id").Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ByItemLineIDs lists the commission lines already written for the given item lines
func (r *CommissionLineRepositoryImpl) ByItemLineIDs(ctx context.Context, itemLineIDs []string) ([]*models.CommissionLine, error) {
	if len(itemLineIDs) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var lines []*models.CommissionLine
	err := db.Where("item_line_id IN ?", itemLineIDs).Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *CommissionLineRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionLineFilter, orderBy string, limit, offset int) ([]*models.CommissionLine, error) {
	db := r.getDB(ctx)
	var lines []*models.CommissionLine
	q := r.applyFilter(db.Model(&models.CommissionLine{}), filter)
	q = paginate(q, orderBy, "id", limit, offset)
	if err := q.Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *CommissionLineRepositoryImpl) Count(ctx context.Context, filter models.CommissionLineFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.CommissionLine{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CommissionLineRepositoryImpl) Exists(ctx context.Context, filter models.CommissionLineFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CommissionLineRepositoryImpl) applyFilter(q *gorm.DB, filter models.CommissionLineFilter) *gorm.DB {
	if filter.ID != nil {
		q = q.Where("id = ?", *filter.ID)
	}
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.ItemLineID != nil {
		q = q.Where("item_line_id = ?", *filter.ItemLineID)
	}
	if filter.RuleID != nil {
		q = q.Where("rule_id = ?", *filter.RuleID)
	}
	return q
}
