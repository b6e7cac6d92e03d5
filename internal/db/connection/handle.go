package connection

import (
	"context"

	"github.com/rebeliceyang/lazydb/internal/models"
)

// Handle is one open database connection owned by a scope
type Handle interface {
	// Driver reports which backend the handle talks to
	Driver() models.Driver
	// Query runs a statement and materializes every returned row
	Query(ctx context.Context, sql string, args ...any) (*QueryResult, error)
	// Execute runs a statement and returns the number of affected rows
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// Column describes one result column
type Column struct {
	Name string
	// TypeName is the database type name reported by the driver, possibly empty
	TypeName string
}

// QueryResult represents a query result with columns and rows in order
type QueryResult struct {
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the result column names in order
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// First returns the first value of the first row
func (r *QueryResult) First() (any, bool) {
	if len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return nil, false
	}
	return r.Rows[0][0], true
}
