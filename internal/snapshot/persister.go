// Package snapshot persists accumulator aggregates and restores them on
// startup.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
)

const defaultWriteTimeout = 5 * time.Second

type Stats struct {
	Saved     uint64
	Failed    uint64
	Coalesced uint64
}

// Persister writes the newest aggregate of every tracked site from a single
// background goroutine. Subscribers only record the snapshot, so a slow
// store never blocks an accumulator; snapshots queued while a write is in
// progress collapse into the latest one per site.
type Persister struct {
	store        storage.SnapshotStore
	writeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	pending  map[string]telemetry.State
	lastSeen map[string]time.Time
	wake     chan struct{}

	saved     atomic.Uint64
	failed    atomic.Uint64
	coalesced atomic.Uint64
}

func NewPersister(store storage.SnapshotStore) *Persister {
	return &Persister{
		store:        store,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.With("component", "snapshot"),
		pending:      make(map[string]telemetry.State),
		lastSeen:     make(map[string]time.Time),
		wake:         make(chan struct{}, 1),
	}
}

// Track subscribes to acc. Changes that do not move LastUpdated, such as
// connection status transitions, are not persisted.
func (p *Persister) Track(acc *telemetry.Accumulator) (untrack func()) {
	return acc.Subscribe(p.enqueue)
}

func (p *Persister) enqueue(state telemetry.State) {
	if state.LastUpdated.IsZero() {
		return
	}

	p.mu.Lock()
	if seen, ok := p.lastSeen[state.SiteID]; ok && !state.LastUpdated.After(seen) {
		p.mu.Unlock()
		return
	}
	p.lastSeen[state.SiteID] = state.LastUpdated
	if _, queued := p.pending[state.SiteID]; queued {
		p.coalesced.Add(1)
	}
	p.pending[state.SiteID] = state
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is cancelled, then flushes what is
// left with a fresh deadline.
func (p *Persister) Run(ctx context.Context) error {
	p.logger.Info("[Snapshot] Persister started")
	defer p.logger.Info("[Snapshot] Persister stopped")

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout)
			defer cancel()
			if err := p.Flush(flushCtx); err != nil {
				p.logger.Warn("[Snapshot] Final flush incomplete", "error", err)
			}
			return nil
		case <-p.wake:
			_ = p.Flush(ctx)
		}
	}
}

// Flush writes every queued snapshot and returns the joined write errors.
// Failed snapshots are re-queued unless a newer one arrived meanwhile.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]telemetry.State, len(batch))
	p.mu.Unlock()

	var errs []error
	for siteID, state := range batch {
		writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		err := p.store.SaveSnapshot(writeCtx, state)
		cancel()
		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("[Snapshot] Save failed", "site_id", siteID, "error", err)
			errs = append(errs, fmt.Errorf("site %s: %w", siteID, err))
			p.requeue(state)
			continue
		}
		p.saved.Add(1)
	}
	return errors.Join(errs...)
}

func (p *Persister) requeue(state telemetry.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, newer := p.pending[state.SiteID]; !newer {
		p.pending[state.SiteID] = state
	}
}

// Pending reports how many sites have a snapshot waiting to be written.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Persister) Stats() Stats {
	return Stats{
		Saved:     p.saved.Load(),
		Failed:    p.failed.Load(),
		Coalesced: p.coalesced.Load(),
	}
}

// Restore seeds acc from the stored snapshot of its site. It reports false
// when nothing is stored.
func Restore(ctx context.Context, store storage.SnapshotStore, acc *telemetry.Accumulator) (bool, error) {
	state, err := store.LoadSnapshot(ctx, acc.SiteID())
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore snapshot %s: %w", acc.SiteID(), err)
	}
	acc.Seed(state)
	slog.Info("[Snapshot] Restored aggregate", "site_id", acc.SiteID(), "last_updated", state.LastUpdated)
	return true, nil
}
