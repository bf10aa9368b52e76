package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/amirphl/marketplace-settlement/models"
	"gorm.io/gorm"
)

// PriceAmountRepositoryImpl implements PriceAmountRepository interface
type PriceAmountRepositoryImpl struct {
	*BaseRepository[models.PriceAmount, models.PriceAmountFilter]
}

// NewPriceAmountRepository creates a new price amount repository
func NewPriceAmountRepository(db *gorm.DB) PriceAmountRepository {
	return &PriceAmountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PriceAmount, models.PriceAmountFilter](db),
	}
}

// AmountFor returns the amount of a price set in a currency; ok is false when none is stored
func (r *PriceAmountRepositoryImpl) AmountFor(ctx context.Context, priceSetID, currencyCode string) (int64, bool, error) {
	db := r.getDB(ctx)
	var amount models.PriceAmount
	err := db.Where("price_set_id = ? AND currency_code = ?", priceSetID, strings.ToLower(currencyCode)).
		Last(&amount).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return amount.Amount, true, nil
}

func (r *PriceAmountRepositoryImpl) ByFilter(ctx context.Context, filter models.PriceAmountFilter, orderBy string, limit, offset int) ([]*models.PriceAmount, error) {
	db := r.getDB(ctx)
	var amounts []*models.PriceAmount
	q := r.applyFilter(db.Model(&models.PriceAmount{}), filter)
	q = paginate(q, orderBy, "price_set_id, currency_code", limit, offset)
	if err := q.Find(&amounts).Error; err != nil {
		return nil, err
	}
	return amounts, nil
}

func (r *PriceAmountRepositoryImpl) Count(ctx context.Context, filter models.PriceAmountFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.PriceAmount{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PriceAmountRepositoryImpl) Exists(ctx context.Context, filter models.PriceAmountFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PriceAmountRepositoryImpl) applyFilter(q *gorm.DB, filter models.PriceAmountFilter) *gorm.DB {
	if filter.ID != nil {
		q = q.Where("id = ?", *filter.ID)
	}
	if filter.PriceSetID != nil {
		q = q.Where("price_set_id = ?", *filter.PriceSetID)
	}
	if filter.CurrencyCode != nil {
		q = q.Where("currency_code = ?", strings.ToLower(*filter.CurrencyCode))
	}
	return q
}
