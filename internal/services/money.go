package services

import "math"

// Cents converts a dollar amount to integer cents, rounding half away from
// zero. All persisted amounts are cents; dollars exist only at the edges.
func Cents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

// Dollars converts integer cents back to a dollar amount.
func Dollars(cents int64) float64 {
	return float64(cents) / 100
}
