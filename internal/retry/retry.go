// Package retry wraps cenkalti/backoff with the single retry policy used for
// third-party calls: exponential doubling from a base delay, a bounded
// attempt count, and fail-fast on failures known to be permanent.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// BaseDelay is the sleep before the first retry; it doubles per attempt.
	BaseDelay time.Duration

	// MaxElapsed caps the total wall-clock time spent retrying. Zero means
	// the cap is implied by the attempt count alone.
	MaxElapsed time.Duration
}

// DefaultPolicy matches the fulfillment path: five attempts starting at two
// seconds, so the full budget is roughly a minute.
var DefaultPolicy = Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second}

// temporary is the signal an error can carry to steer retry classification.
// Errors without the signal are treated as transient.
type temporary interface {
	Temporary() bool
}

// Permanent marks an error as non-retryable. Do fails fast on it without
// consuming the remaining attempt budget.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do invokes op, retrying transient failures under the policy. The last
// failure is returned unchanged; permanent failures are returned on first
// sight. Sleeps respect ctx cancellation.
func Do(ctx context.Context, op func() error, p Policy) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.BaseDelay << 10
	b.MaxElapsedTime = p.MaxElapsed

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		var tmp temporary
		if errors.As(err, &tmp) && !tmp.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx))
}
