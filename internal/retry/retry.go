// Package retry provides the bounded exponential backoff policy used at both
// retry layers of the pipeline: cheap in-page lookups and full task reloads.
package retry

import (
	"context"
	"time"
)

// Policy describes a bounded retry loop with exponential backoff. The delay
// before attempt n (1-based) is BaseDelay * 2^(n-1), capped at MaxDelay.
// A zero MaxDelay leaves the delay uncapped.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff to sleep after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleep blocks for the backoff following the given attempt, returning early
// with the context's error if it is cancelled first.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn up to MaxAttempts times, sleeping the policy's backoff between
// attempts. The predicate decides whether an error is worth another attempt;
// a nil predicate retries every error. Do returns the last error observed.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt < attempts {
			if err := p.Sleep(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}
