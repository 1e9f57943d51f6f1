// Package wait polls a condition until it holds or a deadline passes.
//
// External tools that offer no native readiness notification are observed by
// re-checking a predicate on an exponential schedule. The deadline is exact:
// the last sleep is clipped so the final check happens at the ceiling, not
// one full interval after it.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("wait: condition not met before deadline")

// TimeoutError reports a condition that never held within Timeout.
type TimeoutError struct {
	Timeout time.Duration
	Checks  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition not met within %v (%d checks)", e.Timeout, e.Checks)
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Config controls a single wait.
type Config struct {
	// Timeout is the ceiling for the whole wait. Zero means wait until ctx ends.
	Timeout time.Duration

	// Backoff is the poll schedule. A zero value uses DefaultBackoffConfig.
	Backoff BackoffConfig

	// Seed fixes the jitter sequence.
	Seed int64
}

// Condition reports whether the awaited state has been reached.
type Condition func() bool

// For checks cond immediately and then on the backoff schedule until it
// returns true, the timeout elapses, or ctx is done.
//
// Returns nil on success, a *TimeoutError on timeout, or ctx.Err().
func For(ctx context.Context, cfg Config, cond Condition) error {
	backoff := NewBackoff(cfg.Seed, cfg.Backoff)

	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}

	checks := 0
	for {
		checks++
		if cond() {
			return nil
		}

		delay := backoff.Next()
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return &TimeoutError{Timeout: cfg.Timeout, Checks: checks}
			}
			if delay > remaining {
				delay = remaining
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
