package pricing

import "math"

// Epsilon is the tolerance used when comparing floating point money sums.
const Epsilon = 0.001

// NearlyEqual reports whether a and b differ by no more than Epsilon.
func NearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// Covers reports whether paid settles due within tolerance.
func Covers(paid, due float64) bool {
	return paid >= due-Epsilon
}

// Exceeds reports whether amount is larger than limit beyond tolerance.
func Exceeds(amount, limit float64) bool {
	return amount > limit+Epsilon
}

// RoundCents rounds to two decimal places for display.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
