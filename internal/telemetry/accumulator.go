package telemetry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/google/uuid"
)

type subscriber struct {
	id string
	fn func(State)
}

// Stats counts what the accumulator did with inbound frames.
type Stats struct {
	Applied   uint64
	Ignored   uint64
	Malformed uint64
}

// Accumulator owns the aggregate State of one site. Callers only ever see
// deep copies of it.
//
// Subscribers run synchronously after each change, outside the state lock
// and in the order changes were made. They must not call Apply.
type Accumulator struct {
	siteID string
	clock  clock.Clock
	logger *slog.Logger

	notifyMu sync.Mutex // serialises change + notification
	mu       sync.Mutex
	state    State
	subs     []subscriber

	applied   atomic.Uint64
	ignored   atomic.Uint64
	malformed atomic.Uint64
}

// NewAccumulator binds an empty aggregate to siteID. A nil clock means the
// system clock.
func NewAccumulator(siteID string, clk clock.Clock) *Accumulator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Accumulator{
		siteID: siteID,
		clock:  clk,
		logger: slog.With("component", "accumulator", "site_id", siteID),
		state: State{
			SiteID:           siteID,
			ConnectionStatus: StatusDisconnected,
		},
	}
}

func (a *Accumulator) SiteID() string { return a.siteID }

// Apply folds msg into the aggregate and notifies subscribers. Messages for
// another site are ignored and Apply reports false.
func (a *Accumulator) Apply(msg Message) bool {
	if msg.SiteID != a.siteID {
		a.ignored.Add(1)
		a.logger.Debug("[Accumulator] Ignoring message for foreign site", "message_site_id", msg.SiteID)
		return false
	}

	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.state.apply(msg, a.clock.Now())
	snap := a.state.Clone()
	subs := a.subscribers()
	a.mu.Unlock()

	a.applied.Add(1)
	notify(subs, snap)
	return true
}

// HandleRaw decodes a frame and applies it. Frames that do not parse are
// logged and dropped without touching the aggregate.
func (a *Accumulator) HandleRaw(payload []byte) bool {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		a.malformed.Add(1)
		a.logger.Warn("[Accumulator] Dropping malformed message", "error", err, "bytes", len(payload))
		return false
	}
	return a.Apply(msg)
}

// SetConnectionStatus records the transport status. Subscribers are only
// notified when the status actually changes.
func (a *Accumulator) SetConnectionStatus(status ConnectionStatus) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	if a.state.ConnectionStatus == status {
		a.mu.Unlock()
		return
	}
	a.state.ConnectionStatus = status
	snap := a.state.Clone()
	subs := a.subscribers()
	a.mu.Unlock()

	notify(subs, snap)
}

// ConnectionStatus returns the current transport status.
func (a *Accumulator) ConnectionStatus() ConnectionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ConnectionStatus
}

// Snapshot returns a deep copy of the aggregate.
func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Seed installs a previously persisted aggregate, typically before the feed
// connects. The site id and connection status of the accumulator are kept
// and subscribers are not notified.
func (a *Accumulator) Seed(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := a.state.ConnectionStatus
	a.state = s.Clone()
	a.state.SiteID = a.siteID
	a.state.ConnectionStatus = status
}

// Subscribe registers fn for every change. The returned function removes
// the subscription and is safe to call more than once.
func (a *Accumulator) Subscribe(fn func(State)) (unsubscribe func()) {
	id := uuid.NewString()

	a.mu.Lock()
	a.subs = append(a.subs, subscriber{id: id, fn: fn})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.subs {
			if s.id == id {
				a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
				return
			}
		}
	}
}

// Stats returns the frame counters.
func (a *Accumulator) Stats() Stats {
	return Stats{
		Applied:   a.applied.Load(),
		Ignored:   a.ignored.Load(),
		Malformed: a.malformed.Load(),
	}
}

// subscribers returns a copy of the subscriber list. Must hold a.mu.
func (a *Accumulator) subscribers() []subscriber {
	out := make([]subscriber, len(a.subs))
	copy(out, a.subs)
	return out
}

func notify(subs []subscriber, snap State) {
	for i, s := range subs {
		// Every subscriber gets its own copy.
		if i == len(subs)-1 {
			s.fn(snap)
			continue
		}
		s.fn(snap.Clone())
	}
}
