// Package devicefeed folds per-device telemetry readings into the latest
// site overviews fetched from the upstream API.
package devicefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
)

// Event is one device reading.
type Event = apiclient.DeviceTelemetryEvent

// ErrInvalidEvent is wrapped by Decode for payloads that parse but do not
// name a site and a device.
var ErrInvalidEvent = errors.New("invalid device telemetry event")

// Decode parses a JSON event payload.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := decodeEvent(raw, &ev); err != nil {
		return Event{}, err
	}
	if err := validate(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func decodeEvent(raw []byte, ev *Event) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(ev); err != nil {
		return fmt.Errorf("decode device telemetry: %w", err)
	}
	return nil
}

func validate(ev Event) error {
	if ev.SiteID <= 0 || ev.DeviceID <= 0 {
		return fmt.Errorf("%w: siteId and deviceId are required", ErrInvalidEvent)
	}
	return nil
}

// Sink receives decoded events and payloads that could not be decoded.
type Sink interface {
	Apply(ev Event) bool
	Malformed(payload []byte, err error)
}

// Stats counts what the tracker did with incoming events.
type Stats struct {
	Applied   uint64
	Dropped   uint64
	Malformed uint64
	Sites     int
}

// Tracker keeps the newest overview per site with device readings applied.
// It is safe for concurrent use.
type Tracker struct {
	logger *slog.Logger

	mu    sync.RWMutex
	sites map[int64]apiclient.SiteOverview

	applied   atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

func NewTracker() *Tracker {
	return &Tracker{
		logger: slog.With("component", "devicefeed"),
		sites:  make(map[int64]apiclient.SiteOverview),
	}
}

// Seed installs a freshly fetched overview, replacing whatever readings
// were applied to the previous one.
func (t *Tracker) Seed(ov apiclient.SiteOverview) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sites[ov.ID] = ov.Clone()
}

// Forget drops the overview of siteID.
func (t *Tracker) Forget(siteID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sites, siteID)
}

// Apply writes ev into the tracked overview of its site. Events for sites
// that are not tracked, or devices the overview does not list, are dropped.
func (t *Tracker) Apply(ev Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ov, ok := t.sites[ev.SiteID]
	if !ok || !apiclient.ApplyDeviceTelemetry(&ov, ev) {
		t.dropped.Add(1)
		t.logger.Debug("[DeviceFeed] Dropping event", "site_id", ev.SiteID, "device_id", ev.DeviceID)
		return false
	}
	t.sites[ev.SiteID] = ov
	t.applied.Add(1)
	return true
}

func (t *Tracker) Malformed(payload []byte, err error) {
	t.malformed.Add(1)
	t.logger.Warn("[DeviceFeed] Malformed event dropped", "error", err, "bytes", len(payload))
}

// Overview returns a copy of the tracked overview of siteID.
func (t *Tracker) Overview(siteID int64) (apiclient.SiteOverview, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ov, ok := t.sites[siteID]
	if !ok {
		return apiclient.SiteOverview{}, false
	}
	return ov.Clone(), true
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	sites := len(t.sites)
	t.mu.RUnlock()
	return Stats{
		Applied:   t.applied.Load(),
		Dropped:   t.dropped.Load(),
		Malformed: t.malformed.Load(),
		Sites:     sites,
	}
}

// Source delivers device events to a Sink until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}
