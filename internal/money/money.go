// Package money centralises fixed-point arithmetic for monetary values.
// All ledger amounts are decimals rounded to cents; equality checks use a
// shared tolerance instead of raw comparison.
package money

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the maximum absolute difference treated as equal by balance checks.
var Tolerance = decimal.New(1, -2)

// Zero is the zero amount.
var Zero = decimal.Zero

// Round normalises an amount to cent precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Equal reports whether two amounts are equal within Tolerance.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// IsZero reports whether the amount is zero within Tolerance.
func IsZero(a decimal.Decimal) bool {
	return a.Abs().LessThanOrEqual(Tolerance)
}

// FromString parses a decimal amount, returning zero on malformed input.
func FromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// WeightedAverage blends an existing quantity/cost pair with an incoming lot.
// Returns the previous cost unchanged when the combined quantity is zero so a
// depleted item keeps its last known unit cost.
func WeightedAverage(qtyBefore, costBefore, qtyIn, costIn decimal.Decimal) decimal.Decimal {
	total := qtyBefore.Add(qtyIn)
	if total.IsZero() {
		return costBefore
	}
	value := qtyBefore.Mul(costBefore).Add(qtyIn.Mul(costIn))
	return value.DivRound(total, 4)
}
