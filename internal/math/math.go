package math

import (
	"math"
	"strconv"
)

// Format formats a float based on the given precision
func Format(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// Clamp01 bounds the value to the [0,1] interval.
func Clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// RelDistance returns the distance of the observed value to the threshold,
// relative to the threshold magnitude, capped at 1.
// NOTE : a zero threshold falls back to the absolute distance.
func RelDistance(observed, threshold float64) float64 {
	d := math.Abs(observed - threshold)
	if threshold != 0 {
		d = d / math.Abs(threshold)
	}
	if d > 1 {
		return 1
	}
	return d
}

// SqrtRatio returns sqrt(num/den), guarding against a zero denominator.
func SqrtRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}
