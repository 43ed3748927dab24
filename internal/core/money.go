// Package core provides money parsing and handling utilities.
//
// This file contains the amount parsing used at the input boundary and the
// display formatting used for totals.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and plain
// exponent notation (1e3). Empty, non-numeric, zero and negative inputs are
// rejected with a *ValidationError.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-5")    -> 0, ErrInvalidAmount
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "amount", Value: raw, Err: ErrInvalidAmount}
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Value: raw, Err: ErrInvalidAmount}
	}
	if !d.IsPositive() {
		return 0, &ValidationError{Field: "amount", Value: raw, Err: ErrInvalidAmount}
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || f <= 0 {
		return 0, &ValidationError{Field: "amount", Value: raw, Err: ErrInvalidAmount}
	}
	return f, nil
}

// FormatAmount renders d with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
