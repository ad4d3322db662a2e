// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/database"
	"github.com/helmarr/helmarr/internal/store"
)

// TestDB wraps a migrated test database.
type TestDB struct {
	DB    *database.DB
	Conn  *sql.DB
	Store *store.Store
}

// NewTestDB creates a migrated SQLite database in a temp directory.
// Cleanup is registered on the test.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDB{
		DB:    db,
		Conn:  db.Conn(),
		Store: store.New(db.Conn()),
	}
}

// NewTestLogger creates a test logger that outputs to t.Log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
