package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/config"
	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commissionHarness struct {
	flow     *CommissionFlowImpl
	rules    *fakeRuleRepo
	rates    *fakeRateRepo
	lines    *fakeLineRepo
	payments *fakePaymentRepo
	audits   *fakeAuditRepo
}

func newCommissionHarness(cfg config.CommissionConfig) *commissionHarness {
	h := &commissionHarness{
		rules:    newFakeRuleRepo(),
		rates:    newFakeRateRepo(),
		lines:    newFakeLineRepo(),
		payments: newFakePaymentRepo(),
		audits:   newFakeAuditRepo(),
	}
	h.flow = NewCommissionFlow(
		NewRuleResolver(h.rules, testLogger()),
		NewFeeCalculator(fakePrices{"ps_flat|usd": 150}),
		h.rules, h.rates, h.lines, h.payments, h.audits,
		fakeTx{}, cfg, testLogger(),
	).(*CommissionFlowImpl)
	return h
}

func linesRequest(items ...dto.CommissionLineItem) *dto.CreateCommissionLinesRequest {
	return &dto.CreateCommissionLinesRequest{
		OrderID:      "order_1",
		SellerID:     "S1",
		CurrencyCode: "USD",
		Items:        items,
	}
}

func sellerRuleInput(sellerID, rate string) *dto.CreateCommissionRuleRequest {
	r := decimal.RequireFromString(rate)
	return &dto.CreateCommissionRuleRequest{
		Name:  "seller " + sellerID,
		Scope: dto.CommissionScopeInput{Reference: "seller", SellerID: sellerID},
		Rate:  dto.CommissionRateInput{Type: "percentage", PercentageRate: &r},
	}
}

func TestCommissionFlow_ResolveCommission(t *testing.T) {
	h := newCommissionHarness(config.CommissionConfig{})
	rule := h.rules.addRule(models.SellerProductScope("S1", "P1"), percentageRate("4"))

	resp, err := h.flow.ResolveCommission(context.Background(), &dto.ResolveCommissionRequest{ProductID: "P1", SellerID: "S1"})
	require.NoError(t, err)
	require.True(t, resp.Matched)
	assert.Equal(t, rule.UUID.String(), resp.Rule.ID)
	assert.Equal(t, "seller+product:S1+P1", resp.Rule.RefValue)

	resp, err = h.flow.ResolveCommission(context.Background(), &dto.ResolveCommissionRequest{ProductID: "P2"})
	require.NoError(t, err)
	assert.False(t, resp.Matched)
	assert.Nil(t, resp.Rule)
}

func TestCommissionFlow_LinesFromResolvedRules(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})
	sellerRule := h.rules.addRule(models.SellerScope("S1"), percentageRate("10"))
	h.rules.addRule(models.ProductScope("P_flat"), &models.CommissionRate{Type: models.CommissionRateTypeFixed, PriceSetID: utils.ToPtr("ps_flat")})

	resp, err := h.flow.CreateCommissionLinesForOrder(ctx, linesRequest(
		dto.CommissionLineItem{ItemLineID: "item_1", ProductID: "P1", Subtotal: 10000, TaxTotal: 900},
		dto.CommissionLineItem{ItemLineID: "item_2", ProductID: "P_flat", Subtotal: 4000},
		dto.CommissionLineItem{ItemLineID: "item_free", ProductID: "P3", Subtotal: 0},
	), nil)
	require.NoError(t, err)
	assert.False(t, resp.Skipped)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, dto.CommissionLineDTO{ItemLineID: "item_1", RuleID: sellerRule.UUID.String(), CurrencyCode: "usd", Value: 1000}, resp.Lines[0])
	assert.Equal(t, int64(150), resp.Lines[1].Value)
	assert.Equal(t, int64(1150), resp.Total)

	stored, _ := h.lines.ByOrderID(ctx, "order_1")
	assert.Len(t, stored, 2)
	assert.Len(t, h.audits.all(), 1)
}

func TestCommissionFlow_LinesAreWrittenOnce(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})
	h.rules.addRule(models.SiteScope(), percentageRate("5"))
	req := linesRequest(dto.CommissionLineItem{ItemLineID: "item_1", Subtotal: 2000})

	first, err := h.flow.CreateCommissionLinesForOrder(ctx, req, nil)
	require.NoError(t, err)

	// a second item arrives with the retry; only it gets a new line
	req.Items = append(req.Items, dto.CommissionLineItem{ItemLineID: "item_2", Subtotal: 4000})
	second, err := h.flow.CreateCommissionLinesForOrder(ctx, req, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(100), first.Total)
	assert.Equal(t, int64(300), second.Total)
	assert.Equal(t, first.Lines[0], second.Lines[0])
	assert.Len(t, h.lines.all(), 2)

	// an item line keeps its single commission line even when resubmitted under another order id
	moved := linesRequest(dto.CommissionLineItem{ItemLineID: "item_1", Subtotal: 2000})
	moved.OrderID = "order_2"
	third, err := h.flow.CreateCommissionLinesForOrder(ctx, moved, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Lines[0], third.Lines[0])
	assert.Len(t, h.lines.all(), 2)
}

func TestCommissionFlow_LinesSkippedForPlatformFee(t *testing.T) {
	h := newCommissionHarness(config.CommissionConfig{})
	h.rules.addRule(models.SiteScope(), percentageRate("5"))
	mode := models.PlatformFeeModeIncluded
	h.payments.seed(&models.SplitOrderPayment{
		OrderID:             "order_1",
		PaymentCollectionID: "paycol_1",
		CurrencyCode:        "usd",
		Status:              models.SplitPaymentStatusPending,
		PlatformFee:         700,
		PlatformFeeMode:     &mode,
	})

	resp, err := h.flow.CreateCommissionLinesForOrder(context.Background(), linesRequest(
		dto.CommissionLineItem{ItemLineID: "item_1", Subtotal: 2000},
	), nil)
	require.NoError(t, err)
	assert.True(t, resp.Skipped)
	assert.Empty(t, resp.Lines)
	assert.Empty(t, h.lines.all())
}

func TestCommissionFlow_DefaultRate(t *testing.T) {
	req := linesRequest(dto.CommissionLineItem{ItemLineID: "item_1", Subtotal: 2000, TaxTotal: 400})

	t.Run("disabled leaves unmatched items without a line", func(t *testing.T) {
		h := newCommissionHarness(config.CommissionConfig{DefaultRate: decimal.NewFromInt(5)})
		resp, err := h.flow.CreateCommissionLinesForOrder(context.Background(), req, nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Lines)
		assert.Empty(t, h.audits.all())
	})

	t.Run("enabled applies to unmatched items", func(t *testing.T) {
		h := newCommissionHarness(config.CommissionConfig{
			DefaultRateEnabled: true,
			DefaultRate:        decimal.NewFromInt(5),
			DefaultIncludeTax:  true,
		})
		resp, err := h.flow.CreateCommissionLinesForOrder(context.Background(), req, nil)
		require.NoError(t, err)
		require.Len(t, resp.Lines, 1)
		assert.Equal(t, int64(120), resp.Lines[0].Value)
		assert.Empty(t, resp.Lines[0].RuleID)
	})
}

func TestCommissionFlow_LinesMissingFixedAmount(t *testing.T) {
	h := newCommissionHarness(config.CommissionConfig{})
	h.rules.addRule(models.SiteScope(), &models.CommissionRate{Type: models.CommissionRateTypeFixed, PriceSetID: utils.ToPtr("ps_flat")})

	req := linesRequest(dto.CommissionLineItem{ItemLineID: "item_1", Subtotal: 2000})
	req.CurrencyCode = "eur"
	_, err := h.flow.CreateCommissionLinesForOrder(context.Background(), req, nil)
	assert.True(t, IsPriceAmountNotFound(err))
	assert.Empty(t, h.lines.all())
}

func TestCommissionFlow_CreateCommissionRule(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})

	rule, err := h.flow.CreateCommissionRule(ctx, sellerRuleInput("S1", "10"), nil)
	require.NoError(t, err)
	assert.Equal(t, "seller", rule.Reference)
	assert.Equal(t, "S1", rule.ReferenceID)
	assert.True(t, rule.IsActive)
	require.NotNil(t, rule.Rate)
	assert.True(t, decimal.NewFromInt(10).Equal(*rule.Rate.PercentageRate))
	assert.Len(t, h.rates.all(), 1)

	_, err = h.flow.CreateCommissionRule(ctx, sellerRuleInput("S1", "12"), nil)
	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, ErrCommissionRuleExists)
	assert.Len(t, h.rules.all(), 1)

	failed, _ := h.audits.ListFailedActions(ctx, 10, 0)
	assert.Len(t, failed, 1)
}

func TestCommissionFlow_CreateCommissionRuleValidation(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})

	missingID := sellerRuleInput("", "10")
	_, err := h.flow.CreateCommissionRule(ctx, missingID, nil)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, models.ErrInvalidRuleScope)

	tooHigh := sellerRuleInput("S1", "150")
	_, err = h.flow.CreateCommissionRule(ctx, tooHigh, nil)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, models.ErrInvalidCommissionRate)

	fixedWithoutPrice := sellerRuleInput("S1", "10")
	fixedWithoutPrice.Rate = dto.CommissionRateInput{Type: "fixed"}
	_, err = h.flow.CreateCommissionRule(ctx, fixedWithoutPrice, nil)
	assert.True(t, IsConfigurationError(err))

	assert.Empty(t, h.rules.all())
	assert.Empty(t, h.rates.all())
}

func TestCommissionFlow_UpdateCommissionRule(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})

	created, err := h.flow.CreateCommissionRule(ctx, sellerRuleInput("S1", "10"), nil)
	require.NoError(t, err)
	other, err := h.flow.CreateCommissionRule(ctx, sellerRuleInput("S2", "10"), nil)
	require.NoError(t, err)

	seven := decimal.NewFromInt(7)
	updated, err := h.flow.UpdateCommissionRule(ctx, created.ID, &dto.UpdateCommissionRuleRequest{
		Name:     utils.ToPtr("  renamed "),
		Rate:     &dto.CommissionRateInput{Type: "percentage", PercentageRate: &seven, IncludeTax: true},
		IsActive: utils.ToPtr(false),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, created.Rate.ID, updated.Rate.ID)
	assert.True(t, updated.Rate.IncludeTax)

	rate, _ := h.rates.ByUUID(ctx, created.Rate.ID)
	require.NotNil(t, rate)
	assert.True(t, seven.Equal(*rate.PercentageRate))
	assert.Len(t, h.rates.all(), 2)

	// moving onto a scope another rule holds is a conflict
	_, err = h.flow.UpdateCommissionRule(ctx, other.ID, &dto.UpdateCommissionRuleRequest{
		Scope: &dto.CommissionScopeInput{Reference: "seller", SellerID: "S1"},
	}, nil)
	assert.True(t, IsConflict(err))

	_, err = h.flow.UpdateCommissionRule(ctx, uuid.NewString(), &dto.UpdateCommissionRuleRequest{}, nil)
	assert.True(t, IsCommissionRuleNotFound(err))
	_, err = h.flow.UpdateCommissionRule(ctx, "not-a-uuid", &dto.UpdateCommissionRuleRequest{}, nil)
	assert.True(t, IsNotFound(err))
}

func TestCommissionFlow_DeleteFreesScope(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})

	created, err := h.flow.CreateCommissionRule(ctx, sellerRuleInput("S1", "10"), nil)
	require.NoError(t, err)

	require.NoError(t, h.flow.DeleteCommissionRule(ctx, created.ID, nil))
	assert.True(t, IsCommissionRuleNotFound(h.flow.DeleteCommissionRule(ctx, created.ID, nil)))

	recreated, err := h.flow.CreateCommissionRule(ctx, sellerRuleInput("S1", "8"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, recreated.ID)

	resp, err := h.flow.ResolveCommission(ctx, &dto.ResolveCommissionRequest{SellerID: "S1"})
	require.NoError(t, err)
	require.True(t, resp.Matched)
	assert.Equal(t, recreated.ID, resp.Rule.ID)
}

func TestCommissionFlow_ListCommissionRules(t *testing.T) {
	ctx := context.Background()
	h := newCommissionHarness(config.CommissionConfig{})
	h.rules.addRule(models.SellerScope("S1"), percentageRate("10"))
	h.rules.addRule(models.SellerScope("S2"), percentageRate("10"))
	h.rules.addRule(models.SiteScope(), percentageRate("2"))

	resp, err := h.flow.ListCommissionRules(ctx, &dto.ListCommissionRulesRequest{Reference: utils.ToPtr("seller")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	assert.Len(t, resp.Rules, 2)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, utils.DefaultPageSize, resp.PageSize)

	resp, err = h.flow.ListCommissionRules(ctx, &dto.ListCommissionRulesRequest{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, utils.MaxPageSize, resp.PageSize)
}
