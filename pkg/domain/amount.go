package domain

import (
	"github.com/shopspring/decimal"

	dErrors "guardrail/pkg/domain-errors"
)

// AmountScale is the number of minor-unit digits amounts are held to.
const AmountScale = 2

// ParseAmount validates a transaction amount at a trust boundary.
// Invariant: amounts are strictly positive and carry at most two decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "invalid amount")
	}
	return d, ValidateAmount(d)
}

// ValidateAmount enforces the amount invariant on an already-decoded value.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return dErrors.New(dErrors.CodeInvalidInput, "amount has more than two decimal places")
	}
	return nil
}

// MinorUnits converts an amount to integer minor units (cents).
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(AmountScale).IntPart()
}

// FromMinorUnits converts integer minor units back into an amount.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -AmountScale)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
