// Package history records the free-form queries run against profiles.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rebeliceyang/lazydb/internal/db/sqlitedriver"
	"github.com/rebeliceyang/lazydb/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout sorts lexically in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages query history persistence
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at path and applies
// pending migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open(sqlitedriver.Name, path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the applied migration version
func (s *Store) Version() (int64, error) {
	return goose.GetDBVersion(s.db)
}

// Add records an entry. A missing ID or timestamp is filled in.
func (s *Store) Add(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history
		(id, profile_name, database_name, query, executed_at, duration_ms, rows_affected, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ProfileName,
		entry.DatabaseName,
		entry.Query,
		entry.ExecutedAt.UTC().Format(timeLayout),
		entry.Duration.Milliseconds(),
		entry.RowsAffected,
		entry.Success,
		entry.ErrorMessage,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to add history entry: %w", err)
	}
	return entry, nil
}

// GetRecent retrieves the most recent query history entries
func (s *Store) GetRecent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_name, database_name, query, executed_at,
		       duration_ms, rows_affected, success, error_message
		FROM query_history
		ORDER BY executed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Search searches query history by query text
func (s *Store) Search(ctx context.Context, text string, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_name, database_name, query, executed_at,
		       duration_ms, rows_affected, success, error_message
		FROM query_history
		WHERE query LIKE ?
		ORDER BY executed_at DESC
		LIMIT ?`, "%"+text+"%", limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Prune keeps the newest maxEntries entries and returns how many were removed
func (s *Store) Prune(ctx context.Context, maxEntries int) (int64, error) {
	if maxEntries < 0 {
		maxEntries = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM query_history
		WHERE id NOT IN (
			SELECT id FROM query_history
			ORDER BY executed_at DESC
			LIMIT ?
		)`, maxEntries)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]models.HistoryEntry, error) {
	defer func() { _ = rows.Close() }()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var durationMs int64
		var executedAt string

		err := rows.Scan(
			&e.ID,
			&e.ProfileName,
			&e.DatabaseName,
			&e.Query,
			&executedAt,
			&durationMs,
			&e.RowsAffected,
			&e.Success,
			&e.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}

		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.ExecutedAt, _ = time.Parse(timeLayout, executedAt)

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
