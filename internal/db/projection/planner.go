// Package projection decides, per column, whether a table's values are
// selected directly or replaced by a placeholder because they are too large
// to hold in the grid.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/sqlgen"
	"github.com/rebeliceyang/lazydb/internal/models"
)

const (
	// Placeholder is displayed in place of a redacted value
	Placeholder = "[BLOB]"
	// SizeThreshold is the average text length above which a column is redacted
	SizeThreshold = 1024
	// SampleSize is the number of non-null values averaged per column
	SampleSize = 10
)

// Mode tells how a column is projected
type Mode int

const (
	Direct Mode = iota
	Redacted
)

func (m Mode) String() string {
	if m == Redacted {
		return "redacted"
	}
	return "direct"
}

// Column is one projected column
type Column struct {
	Name string
	Mode Mode
	// TypeName is the declared type reported by the driver, possibly empty
	TypeName string
}

// Spec is the projection of one table, computed once per table load
type Spec struct {
	Table   string
	Columns []Column
	SQL     string
}

// Names returns the column names in order
func (s *Spec) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Redacted reports whether the column at index col is redacted
func (s *Spec) Redacted(col int) bool {
	return col >= 0 && col < len(s.Columns) && s.Columns[col].Mode == Redacted
}

// Index returns the position of the named column, or -1
func (s *Spec) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Error reports a failed projection build
type Error struct {
	Table  string
	Column string
	Err    error
}

func (e *Error) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("projection of %s.%s: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("projection of %s: %v", e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Planner builds projections
type Planner struct {
	logger *slog.Logger
}

// NewPlanner creates a planner. A nil logger uses slog.Default().
func NewPlanner(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{logger: logger}
}

// Build samples table and returns its projection. Only textual and binary
// columns pay for a size sample.
func (p *Planner) Build(ctx context.Context, h connection.Handle, table string) (*Spec, error) {
	sample, err := h.Query(ctx, sqlgen.SampleQuery(table))
	if err != nil {
		return nil, &Error{Table: table, Err: err}
	}

	var first []any
	if len(sample.Rows) > 0 {
		first = sample.Rows[0]
	}

	spec := &Spec{Table: table, Columns: make([]Column, len(sample.Columns))}
	for i, c := range sample.Columns {
		col := Column{Name: c.Name, TypeName: c.TypeName, Mode: Direct}

		var value any
		if first != nil {
			value = first[i]
		}

		if first != nil && isTextual(value, c.TypeName) {
			mode, err := p.sizeMode(ctx, h, table, c.Name)
			if err != nil {
				return nil, err
			}
			col.Mode = mode
		}
		spec.Columns[i] = col
	}

	projected := make([]sqlgen.ProjectedColumn, len(spec.Columns))
	for i, c := range spec.Columns {
		projected[i] = sqlgen.ProjectedColumn{
			Name:     c.Name,
			Redacted: c.Mode == Redacted,
			AsText:   storedAsText(h.Driver(), c.TypeName),
		}
	}
	spec.SQL = sqlgen.ProjectionQuery(table, projected, Placeholder)

	p.logger.Debug("projection built", "table", table, "sql", spec.SQL)
	return spec, nil
}

func (p *Planner) sizeMode(ctx context.Context, h connection.Handle, table, column string) (Mode, error) {
	res, err := h.Query(ctx, sqlgen.SizeSampleQuery(table, column, SampleSize))
	if err != nil {
		// Some drivers fail with no error text when there is nothing to
		// sample; that case is treated as an empty sample. This may hide
		// genuine failures.
		if err.Error() == "" {
			p.logger.Warn("size sample failed without error text, projecting directly", "table", table, "column", column)
			return Direct, nil
		}
		return Direct, &Error{Table: table, Column: column, Err: err}
	}

	v, ok := res.First()
	if !ok || v == nil {
		return Direct, nil
	}

	avg, ok := toFloat(v)
	if !ok {
		p.logger.Warn("unexpected size sample value", "table", table, "column", column, "value", v)
		return Direct, nil
	}

	if avg > SizeThreshold {
		p.logger.Debug("redacting column", "table", table, "column", column, "avg_length", avg)
		return Redacted, nil
	}
	return Direct, nil
}

// storedAsText reports whether a column must be selected as its stored
// text. The SQLite drivers decode DATE, DATETIME and TIMESTAMP columns into
// time.Time, and the re-rendered value no longer equals what is stored, so
// it could not identify its row or be written back.
func storedAsText(d models.Driver, typeName string) bool {
	if d != models.DriverSQLite {
		return false
	}
	t := strings.ToUpper(typeName)
	return strings.Contains(t, "DATE") || strings.Contains(t, "TIME")
}

// isTextual reports whether a sampled value, or the declared type when the
// value is NULL, is text or binary.
func isTextual(v any, typeName string) bool {
	switch v.(type) {
	case string, []byte:
		return true
	case nil:
		if typeName == "" {
			return true
		}
		t := strings.ToUpper(typeName)
		for _, marker := range []string{"CHAR", "TEXT", "CLOB", "BLOB", "BYTEA", "JSON", "XML"} {
			if strings.Contains(t, marker) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case pgtype.Numeric:
		if !n.Valid {
			return 0, false
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return f.Float64, true
	default:
		return 0, false
	}
}
