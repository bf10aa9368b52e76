package businessflow

import (
	"context"
	"log/slog"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/samber/lo"
)

// RuleResolver picks the commission rule that applies to a line item
type RuleResolver interface {
	// Resolve returns the highest priority active rule whose scope the context satisfies, or nil when none does
	Resolve(ctx context.Context, cc models.CommissionCalculationContext) (*models.CommissionRule, error)
}

// RuleResolverImpl resolves rules with one batched lookup over every candidate scope
type RuleResolverImpl struct {
	ruleRepo repository.CommissionRuleRepository
	logger   *slog.Logger
}

func NewRuleResolver(ruleRepo repository.CommissionRuleRepository, logger *slog.Logger) RuleResolver {
	return &RuleResolverImpl{
		ruleRepo: ruleRepo,
		logger:   logger,
	}
}

func (r *RuleResolverImpl) Resolve(ctx context.Context, cc models.CommissionCalculationContext) (*models.CommissionRule, error) {
	candidates := cc.CandidateScopes()

	rules, err := r.ruleRepo.ActiveByScopes(ctx, candidates)
	if err != nil {
		return nil, err
	}

	byScope := lo.KeyBy(rules, func(rule *models.CommissionRule) string {
		return scopeKey(string(rule.Reference), rule.ReferenceID)
	})

	for _, scope := range candidates {
		rule, ok := byScope[scopeKey(scope.Reference(), scope.ReferenceID())]
		if !ok {
			continue
		}
		ruleResolutionsTotal.WithLabelValues(scope.Reference()).Inc()
		r.logger.Debug("commission rule resolved",
			"scope", scope.String(),
			"rule_id", rule.UUID.String(),
			"seller_id", cc.SellerID,
			"product_id", cc.ProductID,
		)
		return rule, nil
	}

	ruleResolutionsTotal.WithLabelValues("none").Inc()
	r.logger.Debug("no commission rule matched", "seller_id", cc.SellerID, "product_id", cc.ProductID)
	return nil, nil
}

func scopeKey(reference, referenceID string) string {
	return reference + "|" + referenceID
}
