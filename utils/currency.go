package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit; amounts are already in the smallest unit
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// NormalizeCurrency returns the lower case currency code used in storage and on the gateway
func NormalizeCurrency(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// IsZeroDecimalCurrency reports whether code has no minor unit
func IsZeroDecimalCurrency(code string) bool {
	_, ok := zeroDecimalCurrencies[NormalizeCurrency(code)]
	return ok
}

func minorUnitFactor(code string) decimal.Decimal {
	if IsZeroDecimalCurrency(code) {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(100)
}

// ToSmallestUnit converts a major unit amount to the smallest currency unit, rounding half up
func ToSmallestUnit(amount decimal.Decimal, currency string) int64 {
	return amount.Mul(minorUnitFactor(currency)).Round(0).IntPart()
}

// FromSmallestUnit converts a smallest unit amount back to major units
func FromSmallestUnit(amount int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnitFactor(currency))
}
