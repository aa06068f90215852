package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL, applies the schema and empties the
// tables. Tests using it are skipped when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.pool.Exec(ctx, `TRUNCATE costco_products, scrape_runs, outbox_event`)
	require.NoError(t, err)

	return db
}
