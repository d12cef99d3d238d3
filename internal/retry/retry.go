// Package retry provides the single bounded-retry policy used across the
// pipeline: reserve-conflict retries and network-submission retries share the
// same policy object instead of scattering ad hoc loops through callers.
package retry

import (
	"context"
	"time"
)

// Policy describes a bounded retry schedule: up to MaxAttempts tries with a
// fixed Backoff pause between them. The zero value performs exactly one
// attempt with no backoff.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy is a sensible fallback: three attempts, 250ms apart.
var DefaultPolicy = Policy{MaxAttempts: 3, Backoff: 250 * time.Millisecond}

// Do invokes fn until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. retryable decides whether a given error is worth
// another attempt; a nil retryable treats every error as retryable.
//
// Do returns the attempt count alongside the final error so callers can
// record how many tries a failure consumed.
func (p Policy) Do(ctx context.Context, fn func() error, retryable func(error) bool) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn()
		if lastErr == nil {
			return attempt, nil
		}
		if retryable != nil && !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return maxAttempts, lastErr
}
