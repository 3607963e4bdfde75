package storage

import (
	"context"
	"errors"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
)

// ErrNotFound is returned when no snapshot is stored for a site.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore persists the last known aggregate of each site so a restart
// can seed accumulators before the push channel delivers a full update.
type SnapshotStore interface {
	// SaveSnapshot stores state under state.SiteID. A snapshot older than the
	// stored one (by LastUpdated) is ignored.
	SaveSnapshot(ctx context.Context, state telemetry.State) error

	LoadSnapshot(ctx context.Context, siteID string) (telemetry.State, error)

	// ListSites returns the ids of every stored snapshot in ascending order.
	ListSites(ctx context.Context) ([]string, error)

	DeleteSnapshot(ctx context.Context, siteID string) error
}
