// Package backoffpolicy supplies the atomic-block driver's optional wait
// strategy between retries, resolving the liveness question: under a
// pathological writer that always wins the race against a committing
// transaction, the driver needs some way to avoid spinning at full CPU
// without changing commit semantics.
package backoffpolicy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"txcell/config"
	"txcell/logger"
)

// Policy is the wait strategy Atomically consults between a failed commit
// and the next attempt.
type Policy interface {
	// Wait blocks for this policy's chosen interval, or until ctx is done,
	// whichever comes first. attempt is the 1-based count of attempts made
	// so far (including the one that just failed).
	Wait(ctx context.Context, attempt uint64) error
	// Reset clears any accumulated backoff state, for reuse across
	// independent atomic blocks sharing one Policy value.
	Reset()
}

// none is the default, zero-wait policy: retry immediately.
type none struct{}

// None returns a Policy that never waits, matching Atomically's behavior
// when the caller supplies no WithBackoff option.
func None() Policy { return none{} }

func (none) Wait(ctx context.Context, attempt uint64) error { return ctx.Err() }
func (none) Reset()                                         {}

// Exponential wraps backoff.ExponentialBackOff, growing the wait between
// attempts up to a configured ceiling.
type Exponential struct {
	b *backoff.ExponentialBackOff
}

// NewExponential builds an Exponential policy seeded from
// config.DefaultBackoffInitialInterval and config.DefaultBackoffMaxInterval.
// NoMaxElapsedTime is disabled: a policy never gives up on its own, because
// the attempt cap (if any) is Atomically's job via WithMaxAttempts, not the
// backoff policy's.
func NewExponential() *Exponential {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.DefaultBackoffInitialInterval
	b.MaxInterval = config.DefaultBackoffMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return &Exponential{b: b}
}

// Wait sleeps for the policy's next computed interval, or returns early if
// ctx is cancelled first.
func (e *Exponential) Wait(ctx context.Context, attempt uint64) error {
	if attempt >= config.AttemptWarnThreshold {
		logger.Inst.Warnw("backoffpolicy: sustained contention", "attempt", attempt)
	}
	d := e.b.NextBackOff()
	if d == backoff.Stop {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset restarts the exponential curve from its initial interval.
func (e *Exponential) Reset() {
	e.b.Reset()
}
