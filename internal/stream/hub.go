package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
)

var (
	// ErrUnknownSite is returned for sites the hub is not allowed to serve.
	ErrUnknownSite = errors.New("stream: site not configured")
	// ErrHubFull is returned when opening a site would exceed the feed limit.
	ErrHubFull = errors.New("stream: too many open sites")
	// ErrHubClosed is returned by Open after Close.
	ErrHubClosed = errors.New("stream: hub closed")
)

// Feed is the live aggregate of one site and the connection feeding it.
type Feed struct {
	Accumulator *telemetry.Accumulator
	Client      *Client
	// OnRelease, if set, runs after the hub disconnected the feed.
	OnRelease func()
}

// FeedFactory builds the feed of a site the first time it is opened.
type FeedFactory func(ctx context.Context, siteID string) (*Feed, error)

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithIdleTimeout lets Sweep release feeds that nobody has used or held for
// d. Configured sites are never released. Zero keeps feeds forever.
func WithIdleTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.idle = d }
}

// WithMaxFeeds bounds the number of feeds open at once. Zero is unbounded.
func WithMaxFeeds(n int) HubOption {
	return func(h *Hub) { h.maxFeeds = n }
}

// WithHubClock replaces the clock used for idle tracking.
func WithHubClock(clk clock.Clock) HubOption {
	return func(h *Hub) { h.clock = clk }
}

type hubEntry struct {
	ready chan struct{}
	feed  *Feed
	err   error

	lastSeen time.Time
	holders  int
}

func (e *hubEntry) built() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Hub owns one feed per site and connects it on first use. Building and
// dialing a feed happens outside the hub lock, so a slow site never holds
// up the others.
type Hub struct {
	factory  FeedFactory
	allowed  map[string]struct{}
	idle     time.Duration
	maxFeeds int
	clock    clock.Clock

	mu     sync.Mutex
	feeds  map[string]*hubEntry
	closed bool
}

// NewHub creates a hub. An empty sites list allows any site id.
func NewHub(factory FeedFactory, sites []string, opts ...HubOption) *Hub {
	h := &Hub{
		factory: factory,
		clock:   clock.System{},
		feeds:   make(map[string]*hubEntry),
	}
	if len(sites) > 0 {
		h.allowed = make(map[string]struct{}, len(sites))
		for _, s := range sites {
			h.allowed[s] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open returns the feed of siteID, creating and connecting it if needed.
// A failed first dial is not an error: the client keeps reconnecting and
// the feed reports its status through the accumulator.
func (h *Hub) Open(ctx context.Context, siteID string) (*Feed, error) {
	f, _, err := h.acquire(ctx, siteID, false)
	return f, err
}

// Acquire opens the feed of siteID and keeps it from being released until
// release is called.
func (h *Hub) Acquire(ctx context.Context, siteID string) (f *Feed, release func(), err error) {
	return h.acquire(ctx, siteID, true)
}

func (h *Hub) acquire(ctx context.Context, siteID string, hold bool) (*Feed, func(), error) {
	if siteID == "" || !h.allows(siteID) {
		return nil, nil, ErrUnknownSite
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrHubClosed
	}
	e, ok := h.feeds[siteID]
	if !ok {
		if h.maxFeeds > 0 && len(h.feeds) >= h.maxFeeds {
			h.mu.Unlock()
			return nil, nil, ErrHubFull
		}
		e = &hubEntry{ready: make(chan struct{})}
		h.feeds[siteID] = e
	}
	e.lastSeen = h.clock.Now()
	if hold {
		e.holders++
	}
	h.mu.Unlock()

	if !ok {
		h.build(ctx, siteID, e)
	}

	release := func() {}
	if hold {
		var once sync.Once
		release = func() { once.Do(func() { h.release(e) }) }
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}
	if e.err != nil {
		release()
		return nil, nil, e.err
	}
	return e.feed, release, nil
}

// build runs the factory and the first dial for e. Waiters are woken once
// it returns.
func (h *Hub) build(ctx context.Context, siteID string, e *hubEntry) {
	defer close(e.ready)

	f, err := h.factory(ctx, siteID)
	if err != nil {
		e.err = err
		h.mu.Lock()
		if h.feeds[siteID] == e {
			delete(h.feeds, siteID)
		}
		h.mu.Unlock()
		return
	}
	e.feed = f
	if f.Client != nil {
		if err := f.Client.Connect(ctx); err != nil {
			slog.Warn("[Hub] Initial connect failed", "site_id", siteID, "error", err)
		}
	}
}

func (h *Hub) release(e *hubEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.holders > 0 {
		e.holders--
	}
	e.lastSeen = h.clock.Now()
}

func (h *Hub) allows(siteID string) bool {
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[siteID]
	return ok
}

// Accumulator returns the live aggregate of siteID, opening its feed.
func (h *Hub) Accumulator(ctx context.Context, siteID string) (*telemetry.Accumulator, error) {
	f, err := h.Open(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return f.Accumulator, nil
}

// Watch is Accumulator for long-lived readers: the feed stays open until
// release is called.
func (h *Hub) Watch(ctx context.Context, siteID string) (*telemetry.Accumulator, func(), error) {
	f, release, err := h.Acquire(ctx, siteID)
	if err != nil {
		return nil, nil, err
	}
	return f.Accumulator, release, nil
}

// Get returns an already opened feed.
func (h *Hub) Get(siteID string) (*Feed, bool) {
	h.mu.Lock()
	e, ok := h.feeds[siteID]
	h.mu.Unlock()
	if !ok || !e.built() || e.err != nil {
		return nil, false
	}
	return e.feed, true
}

// Sites lists the opened site ids in order.
func (h *Hub) Sites() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.feeds))
	for id := range h.feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep disconnects and forgets feeds that were neither used nor held
// within the idle timeout. It reports how many were released.
func (h *Hub) Sweep() int {
	if h.idle <= 0 {
		return 0
	}
	now := h.clock.Now()

	h.mu.Lock()
	var stale []*hubEntry
	for id, e := range h.feeds {
		if _, pinned := h.allowed[id]; pinned {
			continue
		}
		if e.holders > 0 || !e.built() || now.Sub(e.lastSeen) < h.idle {
			continue
		}
		stale = append(stale, e)
		delete(h.feeds, id)
	}
	h.mu.Unlock()

	for _, e := range stale {
		releaseFeed(e.feed)
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then closes the hub.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	defer h.Close()
	if interval <= 0 || h.idle <= 0 {
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
			if n := h.Sweep(); n > 0 {
				slog.Debug("[Hub] Released idle feeds", "count", n)
			}
		}
	}
}

// Close disconnects every feed. Open fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	feeds := h.feeds
	h.feeds = make(map[string]*hubEntry)
	h.mu.Unlock()

	for _, e := range feeds {
		<-e.ready
		releaseFeed(e.feed)
	}
}

func releaseFeed(f *Feed) {
	if f == nil {
		return
	}
	if f.Client != nil {
		f.Client.Disconnect()
	}
	if f.OnRelease != nil {
		f.OnRelease()
	}
}
