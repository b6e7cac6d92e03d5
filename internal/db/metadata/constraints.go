package metadata

import (
	"context"
	"sort"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/sqlgen"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// PrimaryKey returns the primary key columns of table in key order. A table
// without a primary key yields an empty slice.
func PrimaryKey(ctx context.Context, h connection.Handle, table string) ([]string, error) {
	switch h.Driver() {
	case models.DriverPostgres:
		return postgresPrimaryKey(ctx, h, table)
	default:
		return sqlitePrimaryKey(ctx, h, table)
	}
}

func postgresPrimaryKey(ctx context.Context, h connection.Handle, table string) ([]string, error) {
	query := `
		SELECT att.attname
		FROM pg_catalog.pg_index idx
		JOIN pg_catalog.pg_attribute att ON att.attrelid = idx.indrelid
			AND att.attnum = ANY(idx.indkey)
		WHERE idx.indrelid = $1::regclass AND idx.indisprimary
		ORDER BY array_position(idx.indkey::int2[], att.attnum)`

	res, err := h.Query(ctx, query, sqlgen.QuoteTable(table))
	if err != nil {
		return nil, &SchemaError{Op: "primary key", Err: err}
	}

	columns := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		columns = append(columns, toString(row[0]))
	}
	return columns, nil
}

func sqlitePrimaryKey(ctx context.Context, h connection.Handle, table string) ([]string, error) {
	res, err := h.Query(ctx, "PRAGMA table_info("+sqlgen.QuoteIdent(table)+")")
	if err != nil {
		return nil, &SchemaError{Op: "primary key", Err: err}
	}

	nameIdx, pkIdx := -1, -1
	for i, c := range res.Columns {
		switch c.Name {
		case "name":
			nameIdx = i
		case "pk":
			pkIdx = i
		}
	}
	if nameIdx < 0 || pkIdx < 0 {
		return []string{}, nil
	}

	type keyColumn struct {
		name string
		pos  int64
	}
	var keys []keyColumn
	for _, row := range res.Rows {
		if pos := toInt64(row[pkIdx]); pos > 0 {
			keys = append(keys, keyColumn{name: toString(row[nameIdx]), pos: pos})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].pos < keys[j].pos })

	columns := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = k.name
	}
	return columns, nil
}
