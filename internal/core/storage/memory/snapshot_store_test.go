package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	soc := 50.0

	require.NoError(t, s.SaveSnapshot(ctx, telemetry.State{
		SiteID:           "site-1",
		BatterySystem:    &telemetry.BatterySystem{SOC: &soc},
		LastUpdated:      at,
		ConnectionStatus: telemetry.StatusConnected,
	}))
	soc = 99 // caller keeps ownership of its pointers

	got, err := s.LoadSnapshot(ctx, "site-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, *got.BatterySystem.SOC)
	require.Empty(t, got.ConnectionStatus)

	// Older writes never replace newer ones.
	stale := 10.0
	require.NoError(t, s.SaveSnapshot(ctx, telemetry.State{
		SiteID:        "site-1",
		BatterySystem: &telemetry.BatterySystem{SOC: &stale},
		LastUpdated:   at.Add(-time.Minute),
	}))
	got, err = s.LoadSnapshot(ctx, "site-1")
	require.NoError(t, err)
	require.Equal(t, 50.0, *got.BatterySystem.SOC)
}

func TestSnapshotStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()
	require.Error(t, s.SaveSnapshot(ctx, telemetry.State{}))

	require.NoError(t, s.SaveSnapshot(ctx, telemetry.State{SiteID: "b"}))
	require.NoError(t, s.SaveSnapshot(ctx, telemetry.State{SiteID: "a"}))

	ids, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.DeleteSnapshot(ctx, "a"))
	require.ErrorIs(t, s.DeleteSnapshot(ctx, "a"), storage.ErrNotFound)
	_, err = s.LoadSnapshot(ctx, "a")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
