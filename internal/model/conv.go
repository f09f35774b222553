package model

import "math"

// Money is stored as int64 cents throughout the system to avoid float
// drift in ledger arithmetic. Floats only appear at the JSON edge.

// Cents converts a dollar amount to cents, rounding to the nearest cent.
func Cents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

// Dollars converts cents back to a float dollar amount for API responses.
func Dollars(cents int64) float64 {
	return float64(cents) / 100
}

// Bps converts a percentage (e.g. 0.1 for 0.1%) to integer basis points.
func Bps(percent float64) int64 {
	return int64(math.Round(percent * 100))
}
