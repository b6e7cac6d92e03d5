package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/db/sqlitedriver"
)

// NewSQLiteFile creates a SQLite database file in a temp directory, runs
// the given statements against it and returns its path.
func NewSQLiteFile(t testing.TB, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open(sqlitedriver.Name, path)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
	if len(stmts) == 0 {
		// writing the header forces the file to exist
		if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
			t.Fatalf("failed to initialize sqlite: %v", err)
		}
	}
	return path
}
