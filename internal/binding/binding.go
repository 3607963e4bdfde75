// Package binding ties a data loader to a consumer's lifetime and exposes
// its progress as loading, ready or failed.
package binding

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/cache"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/retry"
)

// Status is the state of a binding. At any instant a binding is in exactly
// one of them.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// View is what a consumer renders.
type View[T any] struct {
	Status    Status    `json:"status"`
	Data      T         `json:"data"`
	Err       error     `json:"-"`
	// UpdatedAt is when Data was loaded, zero while there is none. Data is
	// kept through a reload.
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	// Attempt is the retry number currently in progress, 0 for the first try.
	Attempt int `json:"attempt"`
}

// Loader fetches the bound value. It normally goes through a RequestCache.
type Loader[T any] func(ctx context.Context) (T, error)

// Option configures a Binding.
type Option func(*options)

type options struct {
	policy    retry.Policy
	clock     clock.Clock
	retryable func(error) bool
	refresh   time.Duration
	name      string
}

// WithPolicy replaces retry.DefaultPolicy.
func WithPolicy(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock replaces the system clock used for backoff and refresh timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRetryable decides which errors are worth retrying. By default every
// error is.
func WithRetryable(fn func(error) bool) Option {
	return func(o *options) { o.retryable = fn }
}

// WithRefreshInterval re-runs the loader this long after each settle while
// the binding stays active.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refresh = d }
}

// WithName labels log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Binding runs a Loader on behalf of one consumer.
//
// Results that arrive after Deactivate, or after a newer activation, are
// discarded. The loader itself is not aborted: a cache-backed loader keeps
// running and still fills the shared cache.
type Binding[T any] struct {
	opts options

	notifyMu  sync.Mutex // serialises state change + listener calls
	mu        sync.Mutex
	load      Loader[T]
	deps      []any
	ctx       context.Context
	view      View[T]
	gen       uint64
	active    bool
	cancel    context.CancelFunc
	refresh   clock.Timer
	settled   chan struct{}
	listeners []func(View[T])
}

// New creates an idle binding.
func New[T any](load Loader[T], opts ...Option) *Binding[T] {
	o := options{
		policy:    retry.DefaultPolicy(),
		clock:     clock.System{},
		retryable: func(error) bool { return true },
		name:      "binding",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Binding[T]{
		opts: o,
		load: load,
		ctx:  context.Background(),
		view: View[T]{Status: StatusIdle},
	}
}

// OnChange registers fn for every state change. fn must not call back into
// the binding's Activate, Refetch, SetDeps or Deactivate.
func (b *Binding[T]) OnChange(fn func(View[T])) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// View returns the current state.
func (b *Binding[T]) View() View[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// Active reports whether the binding delivers updates.
func (b *Binding[T]) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Activate starts a load. Only ctx's values are kept; the load runs until
// it settles or the binding is deactivated.
func (b *Binding[T]) Activate(ctx context.Context) {
	b.begin(ctx, false)
}

// Refetch starts a new load with a fresh retry budget, bypassing cached
// values. It still joins an identical request that is already in flight.
func (b *Binding[T]) Refetch(ctx context.Context) {
	b.begin(ctx, true)
}

// SetDeps swaps the loader when deps differ from the previous set and, if
// the binding is active, reactivates it. It reports whether deps changed.
func (b *Binding[T]) SetDeps(ctx context.Context, load Loader[T], deps ...any) bool {
	b.mu.Lock()
	if b.deps != nil && reflect.DeepEqual(b.deps, deps) {
		b.mu.Unlock()
		return false
	}
	b.deps = deps
	b.load = load
	active := b.active
	b.mu.Unlock()

	if active {
		b.Activate(ctx)
	}
	return true
}

// Deactivate stops delivering updates. In-flight work is left to finish.
func (b *Binding[T]) Deactivate() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
	b.gen++
	b.stopLocked()
	if b.view.Status == StatusLoading {
		b.view.Status = StatusIdle
		b.settleLocked()
	}
}

// Await blocks until the current load settles or ctx is done.
func (b *Binding[T]) Await(ctx context.Context) (View[T], error) {
	for {
		b.mu.Lock()
		v, ch := b.view, b.settled
		b.mu.Unlock()
		if v.Status != StatusLoading {
			return v, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

func (b *Binding[T]) begin(ctx context.Context, forced bool) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	b.active = true
	b.gen++
	gen := b.gen
	b.stopLocked()
	b.ctx = context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(b.ctx)
	b.cancel = cancel
	if b.view.Status != StatusLoading {
		b.settled = make(chan struct{})
	}
	b.view.Status = StatusLoading
	b.view.Err = nil
	b.view.Attempt = 0
	load := b.load
	view, listeners := b.view, b.copyListeners()
	b.mu.Unlock()

	emit(listeners, view)
	go b.run(runCtx, gen, load, forced)
}

func (b *Binding[T]) run(ctx context.Context, gen uint64, load Loader[T], forced bool) {
	if forced {
		ctx = cache.ForceRefresh(ctx)
	}

	var value T
	err := retry.Do(ctx, b.opts.policy, b.opts.clock, func(ctx context.Context) error {
		v, err := load(ctx)
		if err != nil {
			if !b.opts.retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}, retry.WithNotify(func(attempt int, delay time.Duration, err error) {
		slog.Debug("[Binding] Retrying load", "name", b.opts.name, "attempt", attempt, "delay", delay, "error", err)
		b.setAttempt(gen, attempt)
	}))

	b.finish(gen, value, err)
}

func (b *Binding[T]) setAttempt(gen uint64, attempt int) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.view.Attempt = attempt
	view, listeners := b.view, b.copyListeners()
	b.mu.Unlock()

	emit(listeners, view)
}

func (b *Binding[T]) finish(gen uint64, value T, err error) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if gen != b.gen || !b.active {
		b.mu.Unlock()
		return
	}
	if err != nil {
		var zero T
		b.view.Status = StatusFailed
		b.view.Data = zero
		b.view.Err = err
		b.view.UpdatedAt = time.Time{}
		slog.Warn("[Binding] Load failed", "name", b.opts.name, "error", err)
	} else {
		b.view.Status = StatusReady
		b.view.Data = value
		b.view.Err = nil
		b.view.UpdatedAt = b.opts.clock.Now()
	}
	b.cancel = nil
	// Await callers wake only after listeners saw the settled view.
	settled := b.settled
	b.settled = nil
	if b.opts.refresh > 0 {
		b.refresh = b.opts.clock.AfterFunc(b.opts.refresh, func() { b.refreshTick(gen) })
	}
	view, listeners := b.view, b.copyListeners()
	b.mu.Unlock()

	emit(listeners, view)
	if settled != nil {
		close(settled)
	}
}

func (b *Binding[T]) refreshTick(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || !b.active {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx
	b.mu.Unlock()

	b.Activate(ctx)
}

// stopLocked cancels the retry loop and the refresh timer. Must hold b.mu.
func (b *Binding[T]) stopLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.refresh != nil {
		b.refresh.Stop()
		b.refresh = nil
	}
}

// settleLocked wakes Await callers. Must hold b.mu.
func (b *Binding[T]) settleLocked() {
	if b.settled != nil {
		close(b.settled)
		b.settled = nil
	}
}

func (b *Binding[T]) copyListeners() []func(View[T]) {
	out := make([]func(View[T]), len(b.listeners))
	copy(out, b.listeners)
	return out
}

func emit[T any](listeners []func(View[T]), v View[T]) {
	for _, fn := range listeners {
		fn(v)
	}
}
