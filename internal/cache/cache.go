// Package cache provides a TTL request cache that coalesces concurrent
// fetches of the same key into a single upstream call.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when a caller passes a non-positive ttl.
const DefaultTTL = 30 * time.Second

// FetchFunc loads the value for a key. The context it receives is detached
// from the cancellation of the caller that triggered it.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Fetches  uint64
	Failures uint64
	Entries  int
}

// RequestCache is a TTL cache with single-flight fetches per key.
// The mutex only guards the entry map; it is never held across a fetch,
// so callers for different keys never wait on each other.
type RequestCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	group      singleflight.Group
	clock      clock.Clock
	defaultTTL time.Duration

	hits     atomic.Uint64
	misses   atomic.Uint64
	fetches  atomic.Uint64
	failures atomic.Uint64
}

// Option configures a RequestCache.
type Option func(*RequestCache)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(rc *RequestCache) { rc.clock = c }
}

// WithDefaultTTL sets the ttl used when Get is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(rc *RequestCache) {
		if ttl > 0 {
			rc.defaultTTL = ttl
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *RequestCache {
	rc := &RequestCache{
		entries:    make(map[string]entry),
		clock:      clock.System{},
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

type forceKey struct{}

// ForceRefresh returns a context that makes Get ignore a fresh entry.
// The call still joins an identical fetch that is already in flight.
func ForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

func isForced(ctx context.Context) bool {
	forced, _ := ctx.Value(forceKey{}).(bool)
	return forced
}

// Get returns the cached value for key, joins a pending fetch for it, or
// runs fetch. Successful results are stored for ttl; failures are never
// stored and are delivered to every caller that joined the fetch.
//
// If ctx is done before the fetch settles Get returns ctx.Err(), but the
// fetch itself keeps running and still populates the cache.
func (c *RequestCache) Get(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) (any, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	forced := isForced(ctx)

	if !forced {
		if value, ok := c.lookup(key); ok {
			c.hits.Add(1)
			return value, nil
		}
	}
	c.misses.Add(1)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A fetch for this key may have completed between the lookup
		// above and joining the group.
		if !forced {
			if value, ok := c.lookup(key); ok {
				return value, nil
			}
		}

		c.fetches.Add(1)
		value, err := fetch(fetchCtx)
		if err != nil {
			c.failures.Add(1)
			slog.Debug("[Cache] Fetch failed", "key", key, "error", err)
			return nil, err
		}
		c.store(key, value, ttl)
		return value, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RequestCache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.fresh(c.clock.Now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *RequestCache) store(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.clock.Now(), ttl: ttl}
}

// Invalidate removes every entry whose key contains pattern. An empty
// pattern removes everything. In-flight fetches are not cancelled; their
// results are stored when they complete.
func (c *RequestCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := len(c.entries)
		c.entries = make(map[string]entry)
		return n
	}

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Delete removes the entry stored under exactly key.
func (c *RequestCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes all entries.
func (c *RequestCache) Clear() {
	c.Invalidate("")
}

// Prune drops stale entries and reports how many were removed.
func (c *RequestCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes stale entries every interval until ctx is done.
func (c *RequestCache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Prune(); n > 0 {
				slog.Debug("[Cache] Pruned stale entries", "count", n)
			}
		}
	}
}

// Len reports the number of stored entries, stale or not.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the current counters.
func (c *RequestCache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
		Entries:  c.Len(),
	}
}

// Fetch is a typed wrapper around Get.
func Fetch[T any](ctx context.Context, c *RequestCache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	value, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, ttl)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("cache: entry %q holds %T, want %T", key, value, zero)
	}
	return typed, nil
}
