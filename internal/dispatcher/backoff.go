package dispatcher

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff builds a jittered exponential backoff bounded by policy,
// ready to drive cenkalti/backoff's retry helpers or to be stepped
// manually between dispatcher retry attempts.
func newBackOff(policy retryPolicy) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.base
	eb.MaxInterval = policy.cap
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.5
	eb.MaxElapsedTime = 0 // bounded by maxAttempts via WithMaxRetries instead
	eb.Reset()

	return backoff.WithMaxRetries(eb, uint64(maxInt(policy.maxAttempts-1, 0)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// sleepBetween blocks for d or until done is closed, whichever comes
// first, returning true if the full wait elapsed and false otherwise.
func sleepBetween(d time.Duration, done <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
