package backoff

import "time"

// Delay returns the delay before the given retry attempt, doubling from base
// and capped at max. Attempt counting starts at 1.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := base << (attempt - 1)
	// Large shifts wrap to zero or negative; both mean we passed max long ago.
	if d > max || d < base {
		return max
	}
	return d
}
