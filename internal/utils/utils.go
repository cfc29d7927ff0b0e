package utils

import "math"

// RoundHalfUp rounds v to the given number of decimal places, with ties going
// away from zero
func RoundHalfUp(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	// Nudge by one ulp so values like 1.005 that are stored just below the tie
	// still round up.
	scaled := v * scale
	if scaled >= 0 {
		return math.Floor(math.Nextafter(scaled, math.Inf(1))+0.5) / scale
	}
	return -math.Floor(math.Nextafter(-scaled, math.Inf(1))+0.5) / scale
}

// Rate returns count per second over elapsedSeconds, or 0 when no time elapsed
func Rate(count int64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return float64(count) / elapsedSeconds
}
