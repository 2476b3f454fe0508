// Package backoff configures the bounded exponential retry shared by the
// identity gate and the SQLite busy handler on top of cenkalti/backoff.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// Timer is the wait primitive between attempts. Tests supply one that fires at once.
type Timer = cbackoff.Timer

// Policy configures a retry loop. Attempts counts the first call.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64

	// Timer replaces the real wall-clock timer when set.
	Timer Timer
}

// Default mirrors the profile lookup retry: three attempts starting at one second.
func Default() Policy {
	return Policy{Attempts: 3, Initial: time.Second, Max: 5 * time.Second, Factor: 2}
}

// Retry calls fn until it succeeds, returns an error retryable rejects, or attempts run out.
// The last error from fn is returned unwrapped so callers can still match sentinels.
func (p Policy) Retry(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("backoff: nil func")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var last error
	operation := func() error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if last != nil {
				return cbackoff.Permanent(last)
			}
			return cbackoff.Permanent(ctxErr)
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if retryable != nil && !retryable(err) {
			return cbackoff.Permanent(err)
		}
		return err
	}

	err := cbackoff.RetryNotifyWithTimer(operation, cbackoff.WithContext(p.schedule(), ctx), nil, p.Timer)
	if err != nil && last != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && !errors.Is(last, err) {
		// the deadline cut the wait short; the caller wants the lookup failure
		return last
	}
	return err
}

// schedule builds the deterministic exponential schedule capped at Attempts calls.
func (p Policy) schedule() cbackoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	maxInterval := p.Max
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}

	exp := cbackoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	exp.RandomizationFactor = 0
	exp.Multiplier = factor
	exp.MaxInterval = maxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	return cbackoff.WithMaxRetries(exp, uint64(attempts-1))
}
