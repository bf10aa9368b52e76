package businessflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/config"
	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// CommissionFlow handles commission rules and the legacy per line commissions
type CommissionFlow interface {
	ResolveCommission(ctx context.Context, req *dto.ResolveCommissionRequest) (*dto.ResolveCommissionResponse, error)
	CreateCommissionLinesForOrder(ctx context.Context, req *dto.CreateCommissionLinesRequest, metadata *ClientMetadata) (*dto.CreateCommissionLinesResponse, error)
	CreateCommissionRule(ctx context.Context, req *dto.CreateCommissionRuleRequest, metadata *ClientMetadata) (*dto.CommissionRuleDTO, error)
	UpdateCommissionRule(ctx context.Context, id string, req *dto.UpdateCommissionRuleRequest, metadata *ClientMetadata) (*dto.CommissionRuleDTO, error)
	DeleteCommissionRule(ctx context.Context, id string, metadata *ClientMetadata) error
	ListCommissionRules(ctx context.Context, req *dto.ListCommissionRulesRequest) (*dto.ListCommissionRulesResponse, error)
}

// CommissionFlowImpl implements the commission business flow
type CommissionFlowImpl struct {
	resolver    RuleResolver
	fees        *FeeCalculator
	ruleRepo    repository.CommissionRuleRepository
	rateRepo    repository.CommissionRateRepository
	lineRepo    repository.CommissionLineRepository
	paymentRepo repository.SplitOrderPaymentRepository
	txManager   repository.TxManager
	audit       auditor
	cfg         config.CommissionConfig
	logger      *slog.Logger
}

// NewCommissionFlow creates a new commission flow instance
func NewCommissionFlow(
	resolver RuleResolver,
	fees *FeeCalculator,
	ruleRepo repository.CommissionRuleRepository,
	rateRepo repository.CommissionRateRepository,
	lineRepo repository.CommissionLineRepository,
	paymentRepo repository.SplitOrderPaymentRepository,
	auditRepo repository.AuditLogRepository,
	txManager repository.TxManager,
	cfg config.CommissionConfig,
	logger *slog.Logger,
) CommissionFlow {
	return &CommissionFlowImpl{
		resolver:    resolver,
		fees:        fees,
		ruleRepo:    ruleRepo,
		rateRepo:    rateRepo,
		lineRepo:    lineRepo,
		paymentRepo: paymentRepo,
		txManager:   txManager,
		audit:       auditor{repo: auditRepo, logger: logger},
		cfg:         cfg,
		logger:      logger,
	}
}

// ResolveCommission returns the rule that applies to one line item
func (f *CommissionFlowImpl) ResolveCommission(ctx context.Context, req *dto.ResolveCommissionRequest) (*dto.ResolveCommissionResponse, error) {
	rule, err := f.resolver.Resolve(ctx, models.CommissionCalculationContext{
		ProductID:         req.ProductID,
		ProductTypeID:     req.ProductTypeID,
		ProductCategoryID: req.ProductCategoryID,
		SellerID:          req.SellerID,
	})
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RESOLUTION_FAILED", "Failed to resolve commission rule", err)
	}
	if rule == nil {
		return &dto.ResolveCommissionResponse{Matched: false}, nil
	}

	out := ToCommissionRuleDTO(rule)
	return &dto.ResolveCommissionResponse{Matched: true, Rule: &out}, nil
}

// CreateCommissionLinesForOrder writes one commission line per item of a placed order.
// Orders whose split payment carries a platform fee are skipped. Items that already have a line keep it.
func (f *CommissionFlowImpl) CreateCommissionLinesForOrder(ctx context.Context, req *dto.CreateCommissionLinesRequest, metadata *ClientMetadata) (*dto.CreateCommissionLinesResponse, error) {
	resp := &dto.CreateCommissionLinesResponse{OrderID: req.OrderID, Lines: []dto.CommissionLineDTO{}}
	currency := utils.NormalizeCurrency(req.CurrencyCode)

	payment, err := f.paymentRepo.ByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_LINES_FAILED", "Failed to lookup split payment", err)
	}
	if payment != nil && payment.PlatformFee > 0 {
		f.logger.Info("order carries a platform fee, commission lines skipped", "order_id", req.OrderID, "platform_fee", payment.PlatformFee)
		resp.Skipped = true
		return resp, nil
	}

	// item line ids are unique across orders, so a line written once is never written again
	existing, err := f.lineRepo.ByItemLineIDs(ctx, lo.Map(req.Items, func(item dto.CommissionLineItem, _ int) string {
		return item.ItemLineID
	}))
	if err != nil {
		return nil, NewBusinessError("COMMISSION_LINES_FAILED", "Failed to load commission lines", err)
	}
	existingByItem := lo.KeyBy(existing, func(l *models.CommissionLine) string {
		return l.ItemLineID
	})

	var created []*models.CommissionLine
	for _, item := range req.Items {
		if line, ok := existingByItem[item.ItemLineID]; ok {
			resp.Lines = append(resp.Lines, f.toLineDTO(ctx, line))
			continue
		}

		rate, ruleID, err := f.rateForItem(ctx, req.SellerID, item)
		if err != nil {
			return nil, NewBusinessError("COMMISSION_LINES_FAILED", "Failed to resolve commission rate", err)
		}
		if rate == nil {
			f.logger.Debug("no commission for item", "order_id", req.OrderID, "item_line_id", item.ItemLineID)
			continue
		}

		fee, err := f.fees.RateFee(ctx, rate, LinePrice{
			CurrencyCode: currency,
			Subtotal:     item.Subtotal,
			TaxTotal:     item.TaxTotal,
		})
		if err != nil {
			return nil, NewBusinessErrorf("COMMISSION_LINES_FAILED", "Failed to compute commission for item %s", err, item.ItemLineID)
		}
		if fee == 0 {
			continue
		}

		created = append(created, &models.CommissionLine{
			OrderID:      req.OrderID,
			ItemLineID:   item.ItemLineID,
			RuleID:       ruleID,
			CurrencyCode: currency,
			Value:        fee,
		})
	}

	if len(created) > 0 {
		err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return f.lineRepo.SaveBatch(txCtx, created)
		})
		if err != nil {
			return nil, NewBusinessError("COMMISSION_LINES_FAILED", "Failed to save commission lines", err)
		}

		total := lo.SumBy(created, func(l *models.CommissionLine) int64 { return l.Value })
		f.audit.record(ctx, models.AuditEntityCommissionLine, created[0].ID, models.AuditActionCommissionLinesCreated,
			fmt.Sprintf("%d commission line(s) created for order %s, total %d %s", len(created), req.OrderID, total, currency),
			nil, metadata)
	}

	for _, line := range created {
		resp.Lines = append(resp.Lines, f.toLineDTO(ctx, line))
	}
	resp.Total = lo.SumBy(resp.Lines, func(l dto.CommissionLineDTO) int64 { return l.Value })
	return resp, nil
}

// rateForItem returns the rate of the rule resolved for the item, the configured default rate, or nil
func (f *CommissionFlowImpl) rateForItem(ctx context.Context, sellerID string, item dto.CommissionLineItem) (*models.CommissionRate, *uint, error) {
	rule, err := f.resolver.Resolve(ctx, models.CommissionCalculationContext{
		ProductID:         item.ProductID,
		ProductTypeID:     item.ProductTypeID,
		ProductCategoryID: item.ProductCategoryID,
		SellerID:          sellerID,
	})
	if err != nil {
		return nil, nil, err
	}
	if rule != nil {
		return rule.Rate, &rule.ID, nil
	}

	if !f.cfg.DefaultRateEnabled {
		return nil, nil, nil
	}
	rate := f.cfg.DefaultRate
	return &models.CommissionRate{
		Type:           models.CommissionRateTypePercentage,
		PercentageRate: &rate,
		IncludeTax:     f.cfg.DefaultIncludeTax,
	}, nil, nil
}

func (f *CommissionFlowImpl) toLineDTO(ctx context.Context, line *models.CommissionLine) dto.CommissionLineDTO {
	out := dto.CommissionLineDTO{
		ItemLineID:   line.ItemLineID,
		CurrencyCode: line.CurrencyCode,
		Value:        line.Value,
	}
	if line.RuleID != nil {
		if rule, err := f.ruleRepo.ByID(ctx, *line.RuleID); err == nil && rule != nil {
			out.RuleID = rule.UUID.String()
		}
	}
	return out
}

// CreateCommissionRule creates a rule and its rate for a scope that has no rule yet
func (f *CommissionFlowImpl) CreateCommissionRule(ctx context.Context, req *dto.CreateCommissionRuleRequest, metadata *ClientMetadata) (*dto.CommissionRuleDTO, error) {
	scope, err := scopeFromInput(req.Scope)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RULE_VALIDATION_FAILED", "Invalid commission rule scope", err)
	}
	rate := rateFromInput(req.Rate)
	if err := rate.Validate(); err != nil {
		return nil, NewBusinessError("COMMISSION_RULE_VALIDATION_FAILED", "Invalid commission rate", fmt.Errorf("%w: %w", ErrConfiguration, err))
	}

	rule := &models.CommissionRule{
		Name:     strings.TrimSpace(req.Name),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	rule.SetScope(scope)

	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := f.ruleRepo.ByScope(txCtx, scope)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrCommissionRuleExists, scope.String())
		}

		if err := f.rateRepo.Save(txCtx, rate); err != nil {
			return err
		}
		rule.RateID = rate.ID
		return f.ruleRepo.Save(txCtx, rule)
	})
	if err != nil {
		f.audit.record(ctx, models.AuditEntityCommissionRule, 0, models.AuditActionCommissionRuleCreated,
			fmt.Sprintf("Commission rule creation failed for %s", scope.String()), err, metadata)
		return nil, NewBusinessError("COMMISSION_RULE_CREATION_FAILED", "Failed to create commission rule", err)
	}
	rule.Rate = rate

	f.audit.record(ctx, models.AuditEntityCommissionRule, rule.ID, models.AuditActionCommissionRuleCreated,
		fmt.Sprintf("Commission rule %s created for %s", rule.UUID.String(), scope.String()), nil, metadata)

	out := ToCommissionRuleDTO(rule)
	return &out, nil
}

// UpdateCommissionRule changes the provided fields of a rule; the rate is updated in place
func (f *CommissionFlowImpl) UpdateCommissionRule(ctx context.Context, id string, req *dto.UpdateCommissionRuleRequest, metadata *ClientMetadata) (*dto.CommissionRuleDTO, error) {
	rule, err := f.findRule(ctx, id)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RULE_LOOKUP_FAILED", "Failed to lookup commission rule", err)
	}

	var scope *models.RuleScope
	if req.Scope != nil {
		s, err := scopeFromInput(*req.Scope)
		if err != nil {
			return nil, NewBusinessError("COMMISSION_RULE_VALIDATION_FAILED", "Invalid commission rule scope", err)
		}
		scope = &s
	}

	var rate *models.CommissionRate
	if req.Rate != nil {
		rate = rateFromInput(*req.Rate)
		if err := rate.Validate(); err != nil {
			return nil, NewBusinessError("COMMISSION_RULE_VALIDATION_FAILED", "Invalid commission rate", fmt.Errorf("%w: %w", ErrConfiguration, err))
		}
	}

	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if scope != nil {
			existing, err := f.ruleRepo.ByScope(txCtx, *scope)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != rule.ID {
				return fmt.Errorf("%w: %s", ErrCommissionRuleExists, scope.String())
			}
			rule.SetScope(*scope)
		}

		if rate != nil {
			current := rule.Rate
			if current == nil {
				loaded, err := f.rateRepo.ByID(txCtx, rule.RateID)
				if err != nil {
					return err
				}
				current = loaded
			}
			if current == nil {
				return fmt.Errorf("%w: rule %s has no rate", ErrConfiguration, rule.UUID.String())
			}
			current.Type = rate.Type
			current.PercentageRate = rate.PercentageRate
			current.IncludeTax = rate.IncludeTax
			current.PriceSetID = rate.PriceSetID
			current.MinPriceSetID = rate.MinPriceSetID
			current.MaxPriceSetID = rate.MaxPriceSetID
			if err := f.rateRepo.Update(txCtx, current); err != nil {
				return err
			}
			rule.Rate = current
		}

		if req.Name != nil {
			rule.Name = strings.TrimSpace(*req.Name)
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}

		// the rate row is written above; keep gorm from upserting the association
		withRate := rule.Rate
		rule.Rate = nil
		err := f.ruleRepo.Update(txCtx, rule)
		rule.Rate = withRate
		return err
	})
	if err != nil {
		f.audit.record(ctx, models.AuditEntityCommissionRule, rule.ID, models.AuditActionCommissionRuleUpdated,
			fmt.Sprintf("Commission rule %s update failed", id), err, metadata)
		return nil, NewBusinessError("COMMISSION_RULE_UPDATE_FAILED", "Failed to update commission rule", err)
	}

	f.audit.record(ctx, models.AuditEntityCommissionRule, rule.ID, models.AuditActionCommissionRuleUpdated,
		fmt.Sprintf("Commission rule %s updated", id), nil, metadata)

	out := ToCommissionRuleDTO(rule)
	return &out, nil
}

// DeleteCommissionRule soft deletes a rule; its scope becomes free for a new rule
func (f *CommissionFlowImpl) DeleteCommissionRule(ctx context.Context, id string, metadata *ClientMetadata) error {
	rule, err := f.findRule(ctx, id)
	if err != nil {
		return NewBusinessError("COMMISSION_RULE_LOOKUP_FAILED", "Failed to lookup commission rule", err)
	}

	if err := f.ruleRepo.SoftDelete(ctx, rule.ID); err != nil {
		return NewBusinessError("COMMISSION_RULE_DELETION_FAILED", "Failed to delete commission rule", err)
	}

	f.audit.record(ctx, models.AuditEntityCommissionRule, rule.ID, models.AuditActionCommissionRuleDeleted,
		fmt.Sprintf("Commission rule %s deleted (%s %s)", id, rule.Reference, rule.ReferenceID), nil, metadata)
	return nil
}

// ListCommissionRules returns one page of rules, newest first
func (f *CommissionFlowImpl) ListCommissionRules(ctx context.Context, req *dto.ListCommissionRulesRequest) (*dto.ListCommissionRulesResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = utils.DefaultPageSize
	}
	if pageSize > utils.MaxPageSize {
		pageSize = utils.MaxPageSize
	}

	filter := models.CommissionRuleFilter{
		ReferenceID: req.ReferenceID,
		IsActive:    req.IsActive,
	}
	if req.Reference != nil {
		filter.Reference = utils.ToPtr(models.ScopeKind(*req.Reference))
	}

	rules, err := f.ruleRepo.ByFilter(ctx, filter, "id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RULE_LIST_FAILED", "Failed to list commission rules", err)
	}
	total, err := f.ruleRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RULE_LIST_FAILED", "Failed to count commission rules", err)
	}

	return &dto.ListCommissionRulesResponse{
		Rules: lo.Map(rules, func(r *models.CommissionRule, _ int) dto.CommissionRuleDTO {
			return ToCommissionRuleDTO(r)
		}),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (f *CommissionFlowImpl) findRule(ctx context.Context, id string) (*models.CommissionRule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommissionRuleNotFound, id)
	}
	rule, err := f.ruleRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: %s", ErrCommissionRuleNotFound, id)
	}
	return rule, nil
}

func scopeFromInput(in dto.CommissionScopeInput) (models.RuleScope, error) {
	scope := models.RuleScope{Kind: models.ScopeKind(in.Reference)}
	switch scope.Kind {
	case models.ScopeSellerProduct:
		scope = models.SellerProductScope(in.SellerID, in.ProductID)
	case models.ScopeProduct:
		scope = models.ProductScope(in.ProductID)
	case models.ScopeSellerProductType:
		scope = models.SellerProductTypeScope(in.SellerID, in.ProductTypeID)
	case models.ScopeSellerProductCategory:
		scope = models.SellerProductCategoryScope(in.SellerID, in.ProductCategoryID)
	case models.ScopeSeller:
		scope = models.SellerScope(in.SellerID)
	case models.ScopeProductType:
		scope = models.ProductTypeScope(in.ProductTypeID)
	case models.ScopeProductCategory:
		scope = models.ProductCategoryScope(in.ProductCategoryID)
	case models.ScopeSite:
		scope = models.SiteScope()
	}
	if !scope.Complete() {
		return models.RuleScope{}, fmt.Errorf("%w: %w: %q is missing an id", ErrConfiguration, models.ErrInvalidRuleScope, in.Reference)
	}
	return scope, nil
}

func rateFromInput(in dto.CommissionRateInput) *models.CommissionRate {
	return &models.CommissionRate{
		Type:           models.CommissionRateType(in.Type),
		PercentageRate: in.PercentageRate,
		IncludeTax:     in.IncludeTax,
		PriceSetID:     in.PriceSetID,
		MinPriceSetID:  in.MinPriceSetID,
		MaxPriceSetID:  in.MaxPriceSetID,
	}
}
