package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// CommissionRuleRepositoryImpl implements CommissionRuleRepository interface
type CommissionRuleRepositoryImpl struct {
	*BaseRepository[models.CommissionRule, models.CommissionRuleFilter]
}

// NewCommissionRuleRepository creates a new commission rule repository
func NewCommissionRuleRepository(db *gorm.DB) CommissionRuleRepository {
	return &CommissionRuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionRule, models.CommissionRuleFilter](db),
	}
}

// ByID finds a non-deleted commission rule by ID with its rate
func (r *CommissionRuleRepositoryImpl) ByID(ctx context.Context, id uint) (*models.CommissionRule, error) {
	db := r.getDB(ctx)
	var rule models.CommissionRule
	err := db.Preload("Rate").Last(&rule, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ByUUID finds a non-deleted commission rule by UUID with its rate
func (r *CommissionRuleRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.CommissionRule, error) {
	db := r.getDB(ctx)
	var rule models.CommissionRule
	err := db.Preload("Rate").Where("uuid = ?", uuid).Last(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ByScope finds the non-deleted rule stored for a scope
func (r *CommissionRuleRepositoryImpl) ByScope(ctx context.Context, scope models.RuleScope) (*models.CommissionRule, error) {
	db := r.getDB(ctx)
	var rule models.CommissionRule
	err := db.Preload("Rate").
		Where("reference = ? AND reference_id = ?", scope.Reference(), scope.ReferenceID()).
		Last(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ActiveByScopes fetches the active rules of all candidate scopes in one query
func (r *CommissionRuleRepositoryImpl) ActiveByScopes(ctx context.Context, scopes []models.RuleScope) ([]*models.CommissionRule, error) {
	if len(scopes) == 0 {
		return nil, nil
	}

	pairs := lo.Map(scopes, func(s models.RuleScope, _ int) []any {
		return []any{s.Reference(), s.ReferenceID()}
	})

	db := r.getDB(ctx)
	var rules []*models.CommissionRule
	err := db.Preload("Rate").
		Where("is_active = ?", true).
		Where("(reference, reference_id) IN ?", pairs).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load commission rules by scope: %w", err)
	}
	return rules, nil
}

// SoftDelete marks a rule as deleted so it no longer takes part in resolution
func (r *CommissionRuleRepositoryImpl) SoftDelete(ctx context.Context, id uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Delete(&models.CommissionRule{}, id).Error
	if err != nil {
		return fmt.Errorf("failed to delete commission rule %d: %w", id, err)
	}
	return nil
}

// ByFilter retrieves commission rules based on filter criteria
func (r *CommissionRuleRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionRuleFilter, orderBy string, limit, offset int) ([]*models.CommissionRule, error) {
	db := r.getDB(ctx)
	var rules []*models.CommissionRule

	query := r.applyFilter(db.Model(&models.CommissionRule{}).Preload("Rate"), filter)
	query = paginate(query, orderBy, "created_at DESC", limit, offset)

	err := query.Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// Count returns the number of commission rules matching the filter
func (r *CommissionRuleRepositoryImpl) Count(ctx context.Context, filter models.CommissionRuleFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := r.applyFilter(db.Model(&models.CommissionRule{}), filter)
	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any commission rule matching the filter exists
func (r *CommissionRuleRepositoryImpl) Exists(ctx context.Context, filter models.CommissionRuleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *CommissionRuleRepositoryImpl) applyFilter(query *gorm.DB, filter models.CommissionRuleFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("name ILIKE ?", "%"+*filter.Name+"%")
	}
	if filter.Reference != nil {
		query = query.Where("reference = ?", *filter.Reference)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.RateID != nil {
		query = query.Where("rate_id = ?", *filter.RateID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}
