// Package clock abstracts wall time and timers so that TTL expiry, retry
// backoff and reconnect scheduling can be driven deterministically in tests.
package clock

import (
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// Clock is the time source used by the cache, retry and stream packages.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	After(d time.Duration) <-chan time.Time
}

// System is the real clock. Now is reported in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }
