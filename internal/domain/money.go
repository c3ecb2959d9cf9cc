package domain

import "github.com/shopspring/decimal"

// DefaultCurrency is the single settlement currency of the store.
const DefaultCurrency = "SGD"

// MinorUnits converts an amount to integer cents for storage and provider calls.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts stored cents back to a decimal amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// RoundCurrency rounds to currency precision (2 places, half away from zero).
func RoundCurrency(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
