// Package resolver fetches the real value behind a redacted cell.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/metadata"
	"github.com/rebeliceyang/lazydb/internal/db/projection"
	"github.com/rebeliceyang/lazydb/internal/db/query"
	"github.com/rebeliceyang/lazydb/internal/db/recordset"
	"github.com/rebeliceyang/lazydb/internal/db/sqlgen"
)

var (
	// ErrMissingPrimaryKey is returned when a redacted cell belongs to a
	// table without a primary key
	ErrMissingPrimaryKey = errors.New("table has no primary key")
	// ErrRowNotFound is returned when the row identified by the key is gone
	ErrRowNotFound = errors.New("row not found")
)

// Resolve fetches column of the row whose key columns equal key. NULL
// returns nil bytes.
func Resolve(ctx context.Context, h connection.Handle, table, column string, key []sqlgen.KeyValue) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrMissingPrimaryKey
	}

	res, err := h.Query(ctx, sqlgen.LookupQuery(h.Driver(), table, column, key))
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", table, column, err)
	}

	v, ok := res.First()
	if !ok {
		return nil, ErrRowNotFound
	}
	return query.RawBytes(v), nil
}

// ResolveCell returns the full value of a cell. A cell that already holds
// its value is returned without touching the database. A placeholder cell
// is looked up by the row's primary key.
func ResolveCell(ctx context.Context, h connection.Handle, rs *recordset.RecordSet, row, col int) ([]byte, error) {
	v, err := rs.Value(row, col)
	if err != nil {
		return nil, err
	}
	if rs.Display(row, col) != projection.Placeholder {
		return query.RawBytes(v), nil
	}

	pk, err := metadata.PrimaryKey(ctx, h, rs.Table())
	if err != nil {
		return nil, err
	}
	if len(pk) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", rs.Table(), ErrMissingPrimaryKey)
	}

	key, err := rs.RowKey(row, pk)
	if err != nil {
		return nil, err
	}
	return Resolve(ctx, h, rs.Table(), rs.Columns()[col], key)
}
