package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func percentageRate(rate string) *models.CommissionRate {
	r := decimal.RequireFromString(rate)
	return &models.CommissionRate{Type: models.CommissionRateTypePercentage, PercentageRate: &r}
}

func TestPercentageFee(t *testing.T) {
	ten := decimal.NewFromInt(10)

	tests := []struct {
		price int64
		rate  decimal.Decimal
		fee   int64
	}{
		{10000, ten, 1000},
		{999, ten, 100},
		{995, ten, 100},
		{994, ten, 99},
		{0, ten, 0},
		{12345, decimal.RequireFromString("2.5"), 309},
		{100, decimal.Zero, 0},
		{100, decimal.NewFromInt(100), 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.fee, PercentageFee(tt.price, tt.rate), "price %d at %s%%", tt.price, tt.rate)
	}
}

func TestFeeCalculator_RateFee(t *testing.T) {
	ctx := context.Background()
	prices := fakePrices{
		"ps_fixed|usd": 250,
		"ps_min|usd":   300,
		"ps_max|usd":   800,
		"ps_fixed|jpy": 30,
	}
	calc := NewFeeCalculator(prices)

	t.Run("percentage of subtotal", func(t *testing.T) {
		fee, err := calc.RateFee(ctx, percentageRate("10"), LinePrice{CurrencyCode: "usd", Subtotal: 10000, TaxTotal: 2000})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), fee)
	})

	t.Run("percentage including tax", func(t *testing.T) {
		rate := percentageRate("10")
		rate.IncludeTax = true
		fee, err := calc.RateFee(ctx, rate, LinePrice{CurrencyCode: "usd", Subtotal: 10000, TaxTotal: 2000})
		require.NoError(t, err)
		assert.Equal(t, int64(1200), fee)
	})

	t.Run("fixed amount in line currency", func(t *testing.T) {
		rate := &models.CommissionRate{Type: models.CommissionRateTypeFixed, PriceSetID: utils.ToPtr("ps_fixed")}
		fee, err := calc.RateFee(ctx, rate, LinePrice{CurrencyCode: "JPY", Subtotal: 5000})
		require.NoError(t, err)
		assert.Equal(t, int64(30), fee)
	})

	t.Run("fixed amount missing in currency", func(t *testing.T) {
		rate := &models.CommissionRate{Type: models.CommissionRateTypeFixed, PriceSetID: utils.ToPtr("ps_fixed")}
		_, err := calc.RateFee(ctx, rate, LinePrice{CurrencyCode: "eur", Subtotal: 5000})
		assert.True(t, IsPriceAmountNotFound(err))
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("bounded by minimum", func(t *testing.T) {
		rate := percentageRate("1")
		rate.MinPriceSetID = utils.ToPtr("ps_min")
		fee, err := calc.RateFee(ctx, rate, LinePrice{CurrencyCode: "usd", Subtotal: 10000})
		require.NoError(t, err)
		assert.Equal(t, int64(300), fee)
	})

	t.Run("bounded by maximum", func(t *testing.T) {
		rate := percentageRate("50")
		rate.MaxPriceSetID = utils.ToPtr("ps_max")
		fee, err := calc.RateFee(ctx, rate, LinePrice{CurrencyCode: "usd", Subtotal: 10000})
		require.NoError(t, err)
		assert.Equal(t, int64(800), fee)
	})

	t.Run("bounds without an amount in currency are ignored", func(t *testing.T) {
		rate := percentageRate("50")
		rate.MaxPriceSetID = utils.ToPtr("ps_max")
		fee, err := calc.RateFee(ctx, rate, LinePrice{CurrencyCode: "eur", Subtotal: 10000})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), fee)
	})

	t.Run("invalid rate shape", func(t *testing.T) {
		_, err := calc.RateFee(ctx, percentageRate("120"), LinePrice{CurrencyCode: "usd", Subtotal: 100})
		assert.True(t, IsConfigurationError(err))
		assert.ErrorIs(t, err, models.ErrInvalidCommissionRate)

		_, err = calc.RateFee(ctx, nil, LinePrice{CurrencyCode: "usd", Subtotal: 100})
		assert.True(t, IsConfigurationError(err))
	})
}

func TestValidatePlatformFee(t *testing.T) {
	onTop := models.PlatformFeeModeOnTop
	bogus := models.PlatformFeeMode("sideways")

	assert.NoError(t, ValidatePlatformFee(PlatformFeeInput{}))
	assert.NoError(t, ValidatePlatformFee(PlatformFeeInput{Amount: 500, Mode: &onTop}))
	assert.ErrorIs(t, ValidatePlatformFee(PlatformFeeInput{Amount: 500}), ErrPlatformFeeModeRequired)
	assert.ErrorIs(t, ValidatePlatformFee(PlatformFeeInput{Amount: -1, Mode: &onTop}), ErrInvalidPlatformFee)
	assert.True(t, IsConfigurationError(ValidatePlatformFee(PlatformFeeInput{Amount: 1, Mode: &bogus})))
}
