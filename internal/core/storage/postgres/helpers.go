package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
)

// marshalState encodes the snapshot payload. The connection status is a
// property of the live process and is not persisted.
func marshalState(state telemetry.State) ([]byte, error) {
	state.ConnectionStatus = ""
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSnapshotRow scans a site_snapshots row. Compatible with both sql.Row
// and sql.Rows.
func scanSnapshotRow(row scanner) (telemetry.State, error) {
	var (
		siteID      string
		data        []byte
		lastUpdated sql.NullTime
	)
	if err := row.Scan(&siteID, &data, &lastUpdated); err != nil {
		return telemetry.State{}, err
	}

	var state telemetry.State
	if err := json.Unmarshal(data, &state); err != nil {
		return telemetry.State{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	state.SiteID = siteID
	if lastUpdated.Valid {
		state.LastUpdated = lastUpdated.Time.UTC()
	}
	return state, nil
}
