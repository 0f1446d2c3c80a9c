package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff builds the exponential schedule for a policy. Jitter comes from
// the library's randomization factor.
func newBackOff(p Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	if p.Jitter >= 0 {
		exp.RandomizationFactor = p.Jitter
	}
	exp.Reset()
	return exp
}

// BackoffFor returns the un-jittered delay before retry number attempt
// (1-based). Used where the delay must be reproducible, e.g. queue requeues.
func BackoffFor(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt-1))
	if maxInterval > 0 && duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
