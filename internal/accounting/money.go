package accounting

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Monetary amounts carry two decimal places.
const amountScale = 2

// MaxAmount is the largest amount a movement column holds (NUMERIC(15,2)).
var MaxAmount = decimal.RequireFromString("9999999999999.99")

// NormalizeAmount rounds half away from zero to two decimals.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(amountScale)
}

// ParseAmount reads a decimal amount; blank input is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return NormalizeAmount(d), nil
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountScale)
}
