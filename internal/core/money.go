// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals kept at two decimal places. Rounding is
// half away from zero, which for non-negative currency amounts is half-up.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount into a 2-decimal value.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// on the third decimal place. Signs are rejected; zero is a valid amount.
//
// Examples:
//
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("")       -> 0, ErrMissingAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrMissingAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return RoundAmount(d), nil
}

// RoundAmount rounds to the currency precision of two decimals.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders an amount with a currency symbol and exactly two decimals.
func FormatAmount(symbol string, d decimal.Decimal) string {
	return symbol + d.StringFixed(2)
}
