package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_ArePaired(t *testing.T) {
	ups, err := fs.Glob(MigrationFiles, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(MigrationFiles, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))

	body, err := fs.ReadFile(MigrationFiles, "000001_create_site_snapshots.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "site_snapshots")
}
