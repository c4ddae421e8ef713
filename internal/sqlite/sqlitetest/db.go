// Package sqlitetest provides a migrated in-memory database for
// tests in other packages.
package sqlitetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/volunteerhq/galaxysync/internal/sqlite"
)

// New creates a new in-memory SQLite database with the schema applied.
func New(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.RunMigrations(), "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
