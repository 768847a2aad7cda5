package charge

import "math"

// Round2 rounds a monetary amount to 2 decimal places, half-up.
// Charges are always non-negative, so half away from zero is half-up.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}
