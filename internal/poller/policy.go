package poller

import (
	"math"
	"time"
)

// BackoffPolicy is the retry budget shared by blocking and asynchronous polling
type BackoffPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// Interval returns the wait after the k-th attempt (k starts at 1): I * M^(k-1)
func (p BackoffPolicy) Interval(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	return time.Duration(float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(k-1)))
}

// Budget returns the total time spent waiting when every attempt sees a running flow
func (p BackoffPolicy) Budget() time.Duration {
	var total time.Duration
	for k := 1; k < p.MaxAttempts; k++ {
		total += p.Interval(k)
	}
	return total
}
