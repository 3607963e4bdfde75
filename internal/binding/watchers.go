package binding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
)

type watched[T any] struct {
	binding  *Binding[T]
	lastSeen time.Time
}

// Watchers keeps one active binding per key for as long as someone keeps
// asking for it. Bindings idle for longer than the idle timeout are
// deactivated by Sweep.
type Watchers[T any] struct {
	factory func(key string) *Binding[T]
	idle    time.Duration
	clock   clock.Clock

	mu    sync.Mutex
	items map[string]*watched[T]
}

// NewWatchers creates an empty registry. factory builds the binding for a
// key the first time it is requested.
func NewWatchers[T any](factory func(key string) *Binding[T], idle time.Duration, clk clock.Clock) *Watchers[T] {
	if clk == nil {
		clk = clock.System{}
	}
	return &Watchers[T]{
		factory: factory,
		idle:    idle,
		clock:   clk,
		items:   make(map[string]*watched[T]),
	}
}

// Get returns the binding for key, creating and activating it on first use.
func (w *Watchers[T]) Get(ctx context.Context, key string) *Binding[T] {
	w.mu.Lock()
	item, ok := w.items[key]
	if ok {
		item.lastSeen = w.clock.Now()
		w.mu.Unlock()
		return item.binding
	}
	b := w.factory(key)
	w.items[key] = &watched[T]{binding: b, lastSeen: w.clock.Now()}
	w.mu.Unlock()

	b.Activate(ctx)
	return b
}

// Sweep deactivates and forgets bindings that were not requested within the
// idle timeout.
func (w *Watchers[T]) Sweep() int {
	now := w.clock.Now()

	w.mu.Lock()
	var stale []*Binding[T]
	for key, item := range w.items {
		if w.idle > 0 && now.Sub(item.lastSeen) >= w.idle {
			stale = append(stale, item.binding)
			delete(w.items, key)
		}
	}
	w.mu.Unlock()

	for _, b := range stale {
		b.Deactivate()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then deactivates everything.
func (w *Watchers[T]) Run(ctx context.Context, interval time.Duration) {
	defer w.Close()
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Sweep(); n > 0 {
				slog.Debug("[Watchers] Released idle bindings", "count", n)
			}
		}
	}
}

// Close deactivates every binding.
func (w *Watchers[T]) Close() {
	w.mu.Lock()
	items := w.items
	w.items = make(map[string]*watched[T])
	w.mu.Unlock()

	for _, item := range items {
		item.binding.Deactivate()
	}
}

// Len reports the number of live bindings.
func (w *Watchers[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}
