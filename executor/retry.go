package executor

import "time"

// Backoff computes the delay before the given attempt number (1-indexed)
// is retried.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff returns a Backoff that doubles base per attempt,
// capped at max.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			d = max
		}
		return d
	}
}
