package shared

import "math"

// Epsilon is the tolerance used when comparing posting sums.
const Epsilon = 1e-6

// Round2 rounds a monetary amount to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// IsRounded2 reports whether the amount is already rounded to two decimals.
func IsRounded2(v float64) bool {
	return math.Abs(v-Round2(v)) < Epsilon
}

// AlmostEqual compares two amounts within the supplied tolerance.
func AlmostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
