package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Round rounds an amount to cents, half away from zero.
func Round(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// ParseAmount reads a non-negative decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	return d, nil
}
