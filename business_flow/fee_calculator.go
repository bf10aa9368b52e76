package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/shopspring/decimal"
)

// PriceSetResolver looks up the amount of a price set in one currency
type PriceSetResolver interface {
	AmountFor(ctx context.Context, priceSetID, currencyCode string) (int64, bool, error)
}

// LinePrice is the priced content of one order line, in the smallest currency unit
type LinePrice struct {
	CurrencyCode string
	Subtotal     int64
	TaxTotal     int64
}

// PlatformFeeInput is the fee checkout computed for a whole seller order
type PlatformFeeInput struct {
	Amount int64 // smallest currency unit
	Mode   *models.PlatformFeeMode
}

// FeeCalculator turns commission rates into fees
type FeeCalculator struct {
	prices PriceSetResolver
}

func NewFeeCalculator(prices PriceSetResolver) *FeeCalculator {
	return &FeeCalculator{prices: prices}
}

// RateFee computes the commission a rate charges on one line
func (c *FeeCalculator) RateFee(ctx context.Context, rate *models.CommissionRate, line LinePrice) (int64, error) {
	if rate == nil {
		return 0, fmt.Errorf("%w: commission rule has no rate", ErrConfiguration)
	}
	if err := rate.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	currency := utils.NormalizeCurrency(line.CurrencyCode)
	price := line.Subtotal
	if rate.IncludeTax {
		price += line.TaxTotal
	}

	var fee int64
	switch rate.Type {
	case models.CommissionRateTypePercentage:
		fee = PercentageFee(price, *rate.PercentageRate)
	case models.CommissionRateTypeFixed:
		amount, ok, err := c.prices.AmountFor(ctx, *rate.PriceSetID, currency)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: price set %s, currency %s", ErrPriceAmountNotFound, *rate.PriceSetID, currency)
		}
		fee = amount
	}

	return c.clamp(ctx, rate, currency, fee)
}

// clamp bounds the fee by the rate's min and max price sets that have an amount in currency
func (c *FeeCalculator) clamp(ctx context.Context, rate *models.CommissionRate, currency string, fee int64) (int64, error) {
	if rate.MinPriceSetID != nil && *rate.MinPriceSetID != "" {
		minFee, ok, err := c.prices.AmountFor(ctx, *rate.MinPriceSetID, currency)
		if err != nil {
			return 0, err
		}
		if ok && fee < minFee {
			fee = minFee
		}
	}
	if rate.MaxPriceSetID != nil && *rate.MaxPriceSetID != "" {
		maxFee, ok, err := c.prices.AmountFor(ctx, *rate.MaxPriceSetID, currency)
		if err != nil {
			return 0, err
		}
		if ok && fee > maxFee {
			fee = maxFee
		}
	}
	return fee, nil
}

// PercentageFee returns price * rate / 100 rounded half up to a whole smallest unit
func PercentageFee(price int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(price).Mul(rate).Shift(-2).Round(0).IntPart()
}

// ValidatePlatformFee checks a checkout computed fee before it reaches the ledger
func ValidatePlatformFee(in PlatformFeeInput) error {
	if in.Amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPlatformFee, in.Amount)
	}
	if in.Mode != nil && !in.Mode.Valid() {
		return fmt.Errorf("%w: unknown platform fee mode %q", ErrConfiguration, *in.Mode)
	}
	if in.Amount > 0 && in.Mode == nil {
		return ErrPlatformFeeModeRequired
	}
	return nil
}
