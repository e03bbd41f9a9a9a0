package util

import "math"

// RoundTo rounds x to the given number of decimal places.
// Negative zero is folded to zero so rendered margins never read "-0".
func RoundTo(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	r := math.Round(x*p) / p
	if r == 0 {
		return 0
	}
	return r
}
