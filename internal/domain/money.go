package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents). All reconciliation
// arithmetic stays in integer cents; decimal is used only at the parse,
// format, and apportionment boundaries.
type Money int64

// ParseMoney converts a decimal string ("800.00") to cents.
// Sub-cent precision is an error, not a silent truncation.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	return Money(cents.IntPart()), nil
}

// Decimal returns the amount in major units (dollars) as a decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount with two fractional digits, e.g. "800.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) IsPositive() bool { return m > 0 }

// Abs returns the magnitude of the amount.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Split apportions the amount into n shares using banker's rounding,
// with the rounding remainder assigned to the first share. The sum of
// the shares always equals m exactly.
func (m Money) Split(n int) []Money {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []Money{m}
	}
	share := Money(m.Decimal().Div(decimal.NewFromInt(int64(n))).RoundBank(2).Shift(2).IntPart())
	shares := make([]Money, n)
	rest := m
	for i := 1; i < n; i++ {
		shares[i] = share
		rest -= share
	}
	shares[0] = rest
	return shares
}
