package model

import (
	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places money is persisted with.
const MinorUnitExponent = 2

// ToMinorUnits converts an amount to integer cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(MinorUnitExponent).Round(0).IntPart()
}

// FromMinorUnits converts integer cents back into a decimal amount.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -MinorUnitExponent)
}

// HasMinorUnitPrecision reports whether amount is representable in cents exactly.
func HasMinorUnitPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(MinorUnitExponent))
}
