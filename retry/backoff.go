// Package retry provides the jittered exponential backoff used by every
// bounded-retry loop in the pipeline.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff returns the delay before the given attempt (0-based for the first
// retry). The delay doubles per attempt, is capped at max and carries ±20%
// jitter so concurrent retriers spread out.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if attempt <= 0 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
