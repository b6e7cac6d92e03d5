// Package metadata lists databases, tables and primary keys of an open
// connection.
package metadata

import (
	"context"
	"fmt"
	"sort"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// SchemaError reports a failed catalog query with the driver's error text
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// toString safely converts a driver value to string
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toInt64 converts an integer driver value
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		var out int64
		_, _ = fmt.Sscan(toString(v), &out)
		return out
	}
}

// ListDatabases returns the non-template databases of a server connection,
// sorted. File-based drivers have no databases to list and return nil.
func ListDatabases(ctx context.Context, h connection.Handle) ([]string, error) {
	if h.Driver().IsFileBased() {
		return nil, nil
	}

	query := `
		SELECT datname AS name
		FROM pg_catalog.pg_database
		WHERE datistemplate = false
		ORDER BY datname`

	res, err := h.Query(ctx, query)
	if err != nil {
		return nil, &SchemaError{Op: "list databases", Err: err}
	}

	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		names = append(names, toString(row[0]))
	}
	sort.Strings(names)
	return names, nil
}

// Applicable reports whether ListDatabases means anything for driver
func Applicable(driver models.Driver) bool {
	return !driver.IsFileBased()
}
