package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rebeliceyang/lazydb/internal/db/sqlitedriver"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// SQLHandle adapts a database/sql pool to Handle
type SQLHandle struct {
	db     *sql.DB
	driver models.Driver
}

// NewSQLHandle wraps an already opened *sql.DB
func NewSQLHandle(db *sql.DB, driver models.Driver) *SQLHandle {
	return &SQLHandle{db: db, driver: driver}
}

// OpenSQLite attaches to an existing SQLite file. The file is never created.
func OpenSQLite(ctx context.Context, path string) (*SQLHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("sqlite file does not exist: %s", path)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("sqlite path is not a regular file: %s", path)
	}

	db, err := sql.Open(sqlitedriver.Name, sqlitedriver.DSN(path))
	if err != nil {
		return nil, err
	}
	// a single connection keeps every statement of a scope on one handle
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewSQLHandle(db, models.DriverSQLite), nil
}

// Driver implements Handle
func (h *SQLHandle) Driver() models.Driver {
	return h.driver
}

// DB returns the underlying *sql.DB
func (h *SQLHandle) DB() *sql.DB {
	return h.db
}

// Ping tests the connection
func (h *SQLHandle) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close closes the database
func (h *SQLHandle) Close() {
	if h.db != nil {
		_ = h.db.Close()
	}
}

// Query executes a query and returns column names in order
func (h *SQLHandle) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name}
	}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			if i < len(columns) {
				columns[i].TypeName = ct.DatabaseTypeName()
			}
		}
	}

	var results [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			// text comes back as []byte from some drivers; keep it a string so
			// it binds as TEXT when used in a predicate
			if b, ok := v.([]byte); ok && !isBinaryType(columns[i].TypeName) {
				values[i] = string(b)
			}
		}
		results = append(results, values)
	}

	return &QueryResult{
		Columns: columns,
		Rows:    results,
	}, rows.Err()
}

// Execute executes a statement without returning rows
func (h *SQLHandle) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isBinaryType(typeName string) bool {
	t := strings.ToUpper(typeName)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BYTEA") || strings.Contains(t, "BINARY")
}
