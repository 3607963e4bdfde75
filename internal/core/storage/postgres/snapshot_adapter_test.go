package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/stretchr/testify/require"
)

var savedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }

func sampleState() telemetry.State {
	return telemetry.State{
		SiteID:           "site-1",
		BatterySystem:    &telemetry.BatterySystem{SOC: floatPtr(72)},
		LastUpdated:      time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		ConnectionStatus: telemetry.StatusConnected,
	}
}

func TestSnapshotAdapter_SaveSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		state      telemetry.State
		mockResult func(mock sqlmock.Sqlmock, state telemetry.State)
		assertions func(t *testing.T, err error)
	}{
		{
			name:  "upserts payload without connection status",
			state: sampleState(),
			mockResult: func(mock sqlmock.Sqlmock, state telemetry.State) {
				mock.ExpectExec(regexp.QuoteMeta(queryUpsertSnapshot)).
					WithArgs(state.SiteID, jsonWithoutStatus{}, state.LastUpdated, savedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			assertions: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:  "older snapshot is ignored without error",
			state: sampleState(),
			mockResult: func(mock sqlmock.Sqlmock, state telemetry.State) {
				mock.ExpectExec(regexp.QuoteMeta(queryUpsertSnapshot)).
					WithArgs(state.SiteID, sqlmock.AnyArg(), state.LastUpdated, savedAt).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			assertions: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:  "database error is wrapped",
			state: sampleState(),
			mockResult: func(mock sqlmock.Sqlmock, state telemetry.State) {
				mock.ExpectExec(regexp.QuoteMeta(queryUpsertSnapshot)).
					WillReturnError(errors.New("connection reset"))
			},
			assertions: func(t *testing.T, err error) {
				require.ErrorContains(t, err, "failed to save snapshot")
				require.ErrorContains(t, err, "connection reset")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, mock := newMockAdapter(t)
			tt.mockResult(mock, tt.state)

			err := adapter.SaveSnapshot(context.Background(), tt.state)
			tt.assertions(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSnapshotAdapter_SaveSnapshotRequiresSiteID(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	require.Error(t, adapter.SaveSnapshot(context.Background(), telemetry.State{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_LoadSnapshot(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	stored := sampleState()
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadSnapshot)).
		WithArgs("site-1").
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "state", "last_updated"}).
			AddRow("site-1", payload, stored.LastUpdated))

	got, err := adapter.LoadSnapshot(context.Background(), "site-1")
	require.NoError(t, err)
	require.Equal(t, "site-1", got.SiteID)
	require.Equal(t, 72.0, *got.BatterySystem.SOC)
	require.Equal(t, stored.LastUpdated, got.LastUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_LoadSnapshotNotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	mock.ExpectQuery(regexp.QuoteMeta(queryLoadSnapshot)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "state", "last_updated"}))

	_, err := adapter.LoadSnapshot(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_ListAndDelete(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryListSites)).
		WillReturnRows(sqlmock.NewRows([]string{"site_id"}).AddRow("site-1").AddRow("site-2"))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteSnapshot)).
		WithArgs("site-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteSnapshot)).
		WithArgs("site-9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sites, err := adapter.ListSites(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"site-1", "site-2"}, sites)

	require.NoError(t, adapter.DeleteSnapshot(context.Background(), "site-1"))
	require.ErrorIs(t, adapter.DeleteSnapshot(context.Background(), "site-9"), storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSnapshotAdapter_MissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = NewSnapshotAdapter(db)
	require.ErrorContains(t, err, "did you run migrations?")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSnapshotAdapter_PreparesStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for _, q := range []string{queryUpsertSnapshot, queryLoadSnapshot, queryListSites, queryDeleteSnapshot} {
		mock.ExpectPrepare(regexp.QuoteMeta(q)).WillBeClosed()
	}
	mock.ExpectClose()

	adapter, err := NewSnapshotAdapter(db)
	require.NoError(t, err)
	require.NoError(t, adapter.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_CloseReturnsDBCloseError(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	dbCloseErr := errors.New("db close failed")
	mock.ExpectClose().WillReturnError(dbCloseErr)

	err := adapter.Close()
	require.ErrorContains(t, err, "failed to close database")
	require.ErrorIs(t, err, dbCloseErr)
}

// jsonWithoutStatus matches a snapshot payload whose connection status was
// stripped before it was written.
type jsonWithoutStatus struct{}

var _ sqlmock.Argument = jsonWithoutStatus{}

func (jsonWithoutStatus) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var s telemetry.State
	if err := json.Unmarshal(b, &s); err != nil {
		return false
	}
	return s.ConnectionStatus == "" && s.BatterySystem != nil
}

func newMockAdapter(t *testing.T) (*SnapshotAdapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &SnapshotAdapter{
		db:         db,
		stmtUpsert: mustPrepareStmt(t, db, mock, queryUpsertSnapshot),
		stmtLoad:   mustPrepareStmt(t, db, mock, queryLoadSnapshot),
		stmtList:   mustPrepareStmt(t, db, mock, queryListSites),
		stmtDelete: mustPrepareStmt(t, db, mock, queryDeleteSnapshot),
		now:        func() time.Time { return savedAt },
	}
	return adapter, mock
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}

func TestJSONWithoutStatus_Match(t *testing.T) {
	stored, err := marshalState(sampleState())
	require.NoError(t, err)
	require.True(t, jsonWithoutStatus{}.Match(stored))

	live, err := json.Marshal(sampleState())
	require.NoError(t, err)
	require.False(t, jsonWithoutStatus{}.Match(live))
	require.False(t, jsonWithoutStatus{}.Match("not bytes"))
}
