package repository

import (
	"context"
	"errors"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
)

// CommissionRateRepositoryImpl implements CommissionRateRepository interface
type CommissionRateRepositoryImpl struct {
	*BaseRepository[models.CommissionRate, models.CommissionRateFilter]
}

// NewCommissionRateRepository creates a new commission rate repository
func NewCommissionRateRepository(db *gorm.DB) CommissionRateRepository {
	return &CommissionRateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionRate, models.CommissionRateFilter](db),
	}
}

// ByUUID finds a commission rate by UUID
func (r *CommissionRateRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.CommissionRate, error) {
	db := r.getDB(ctx)
	var rate models.CommissionRate
	err := db.Where("uuid = ?", uuid).Last(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

// ByFilter retrieves commission rates based on filter criteria
func (r *CommissionRateRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionRateFilter, orderBy string, limit, offset int) ([]*models.CommissionRate, error) {
	db := r.getDB(ctx)
	var rates []*models.CommissionRate

	query := r.applyFilter(db.Model(&models.CommissionRate{}), filter)
	query = paginate(query, orderBy, "id", limit, offset)

	err := query.Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// Count returns the number of commission rates matching the filter
func (r *CommissionRateRepositoryImpl) Count(ctx context.Context, filter models.CommissionRateFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := r.applyFilter(db.Model(&models.CommissionRate{}), filter)
	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any commission rate matching the filter exists
func (r *CommissionRateRepositoryImpl) Exists(ctx context.Context, filter models.CommissionRateFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *CommissionRateRepositoryImpl) applyFilter(query *gorm.DB, filter models.CommissionRateFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.IncludeTax != nil {
		query = query.Where("include_tax = ?", *filter.IncludeTax)
	}
	return query
}
