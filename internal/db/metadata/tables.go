package metadata

import (
	"context"
	"sort"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// ListTables returns the user tables visible on the connection, sorted.
// Postgres tables outside the public schema are qualified as schema.table.
func ListTables(ctx context.Context, h connection.Handle) ([]string, error) {
	var query string
	switch h.Driver() {
	case models.DriverPostgres:
		query = `
			SELECT schemaname, tablename
			FROM pg_catalog.pg_tables
			WHERE schemaname NOT IN ('pg_catalog', 'information_schema')`
	default:
		query = `
			SELECT '' AS schemaname, name
			FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	}

	res, err := h.Query(ctx, query)
	if err != nil {
		return nil, &SchemaError{Op: "list tables", Err: err}
	}

	tables := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		schema, name := toString(row[0]), toString(row[1])
		if schema != "" && schema != "public" {
			name = schema + "." + name
		}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}
