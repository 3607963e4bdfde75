package postgres

// SQL queries for site snapshot storage

const (
	// queryUpsertSnapshot writes one snapshot per site. The WHERE clause
	// keeps a newer stored snapshot when writes arrive out of order.
	queryUpsertSnapshot = `
		INSERT INTO site_snapshots (site_id, state, last_updated, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (site_id) DO UPDATE SET
			state        = EXCLUDED.state,
			last_updated = EXCLUDED.last_updated,
			saved_at     = EXCLUDED.saved_at
		WHERE site_snapshots.last_updated IS NULL
		   OR EXCLUDED.last_updated >= site_snapshots.last_updated
	`

	queryLoadSnapshot = `
		SELECT site_id, state, last_updated
		FROM site_snapshots
		WHERE site_id = $1
	`

	queryListSites = `SELECT site_id FROM site_snapshots ORDER BY site_id ASC`

	queryDeleteSnapshot = `DELETE FROM site_snapshots WHERE site_id = $1`
)
