package queue

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultBackoffBase is the delay before the second attempt
	DefaultBackoffBase = 2 * time.Second

	maxBackoff = 10 * time.Minute
)

// BackoffFunc returns the delay to wait after the given failed attempt
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff doubles base for every failed attempt without jitter:
// with a 2s base, attempts 1..4 wait 2s, 4s, 8s and 16s.
func ExponentialBackoff(base time.Duration) BackoffFunc {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		b := &backoff.ExponentialBackOff{
			InitialInterval:     base,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         maxBackoff,
		}
		b.Reset()

		var delay time.Duration
		for i := 0; i < attempt; i++ {
			delay = b.NextBackOff()
		}
		return delay
	}
}

// Backoff is the default schedule
var Backoff = ExponentialBackoff(DefaultBackoffBase)
