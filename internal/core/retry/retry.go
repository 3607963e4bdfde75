// Package retry implements a bounded exponential backoff policy that runs on
// an injected clock.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMultiplier  = 2.0
)

// ErrExhausted is wrapped by the error Do returns once every retry failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxAttempts is the number of retries after the first try.
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultPolicy mirrors the dashboard data hooks: three retries starting at
// one second and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  defaultMultiplier,
	}
}

func (p Policy) normalized() Policy {
	n := p
	if n.MaxAttempts < 0 {
		n.MaxAttempts = 0
	}
	if n.BaseDelay <= 0 {
		n.BaseDelay = defaultBaseDelay
	}
	if n.Multiplier < 1 {
		n.Multiplier = defaultMultiplier
	}
	return n
}

// Delay returns the wait before retry number attempt (zero based):
// BaseDelay * Multiplier^attempt, capped by MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged as soon as it sees it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Option customises a single Do call.
type Option func(*options)

type options struct {
	notify func(attempt int, delay time.Duration, err error)
}

// WithNotify registers a callback invoked before each retry wait.
func WithNotify(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.notify = fn }
}

// Do runs op until it succeeds, returns a permanent error, the context is
// done, or the policy is exhausted.
func Do(ctx context.Context, p Policy, clk clock.Clock, op func(ctx context.Context) error, opts ...Option) error {
	p = p.normalized()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}

		delay := p.Delay(attempt)
		if o.notify != nil {
			o.notify(attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(delay):
		}
	}
}
