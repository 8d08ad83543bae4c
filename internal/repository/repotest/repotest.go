// Package repotest provides migrated in-memory databases for tests.
package repotest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/repository"
)

// NewDB returns an empty SQLite database with the full schema applied.
// It is closed when the test finishes.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := repository.NewSQLiteDB(":memory:?_time_format=sqlite&_pragma=foreign_keys(1)", logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := repository.MigrateDB(db, logger); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
