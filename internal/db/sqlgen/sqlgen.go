// Package sqlgen builds every SQL statement the browser generates. Filter
// text is user-authored SQL and is appended verbatim after WHERE; all other
// pieces are assembled here so they can be audited in one place.
package sqlgen

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// TimeLayout is the literal format used for date/time values
const TimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// ProjectedColumn is one column of a generated SELECT list
type ProjectedColumn struct {
	Name     string
	Redacted bool
	// AsText selects the value as stored text instead of letting the driver
	// decode it
	AsText bool
}

// KeyValue pairs a column with a value identifying a row
type KeyValue struct {
	Column string
	Value  any
}

// OrderBy sorts a data query by one column
type OrderBy struct {
	Column string
	Desc   bool
}

// Placeholder returns the bind parameter marker for position n (1-based)
func Placeholder(d models.Driver, n int) string {
	if d == models.DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdent double-quotes an identifier
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteTable quotes each part of a possibly schema-qualified table name
func QuoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// QuoteString escapes single quotes and wraps s in quotes. No other
// sanitization is applied.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Literal renders v for inlining into a predicate. Text and time values are
// quoted; numbers and everything else are written as is.
func Literal(d models.Driver, v any) string {
	if valuer, ok := v.(driver.Valuer); ok {
		inner, err := valuer.Value()
		if err == nil {
			v = inner
		}
	}

	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return QuoteString(val)
	case []byte:
		return QuoteString(string(val))
	case time.Time:
		return QuoteString(val.Format(TimeLayout))
	case [16]byte:
		return QuoteString(uuid.UUID(val).String())
	case bool:
		if d == models.DriverPostgres {
			if val {
				return "TRUE"
			}
			return "FALSE"
		}
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func where(filter string) string {
	if strings.TrimSpace(filter) == "" {
		return ""
	}
	return " WHERE " + filter
}

// CountQuery counts the rows of table matching filter
func CountQuery(table, filter string) string {
	return "SELECT COUNT(*) FROM " + QuoteTable(table) + where(filter)
}

// SampleQuery fetches one row to discover the columns of table
func SampleQuery(table string) string {
	return "SELECT * FROM " + table + " LIMIT 1"
}

// SizeSampleQuery averages the text length of up to n non-null values of column
func SizeSampleQuery(table, column string, n int) string {
	return fmt.Sprintf(
		"SELECT AVG(length(%[1]s)) FROM (SELECT cast(%[1]s AS text) AS %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL LIMIT %[3]d) AS tmp",
		column, table, n)
}

// ProjectionQuery builds the SELECT list for table, substituting placeholder
// for redacted columns.
func ProjectionQuery(table string, columns []ProjectedColumn, placeholder string) string {
	items := make([]string, len(columns))
	for i, c := range columns {
		switch {
		case c.Redacted:
			items[i] = QuoteString(placeholder) + " as " + c.Name
		case c.AsText:
			items[i] = "CAST(" + c.Name + " AS TEXT) AS " + c.Name
		default:
			items[i] = c.Name
		}
	}
	return "SELECT " + strings.Join(items, ", ") + " FROM " + table
}

// DataQuery appends the filter, ordering and paging to a projection query.
// limit <= 0 fetches every row.
func DataQuery(projection, filter string, order *OrderBy, limit, offset int) string {
	var b strings.Builder
	b.WriteString(projection)
	b.WriteString(where(filter))
	if order != nil && order.Column != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(QuoteIdent(order.Column))
		if order.Desc {
			b.WriteString(" DESC")
		}
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	}
	return b.String()
}

// EqualityPredicates joins one predicate per key column with AND, inlining
// the values as literals.
func EqualityPredicates(d models.Driver, key []KeyValue) string {
	preds := make([]string, len(key))
	for i, kv := range key {
		if kv.Value == nil {
			preds[i] = kv.Column + " IS NULL"
		} else {
			preds[i] = kv.Column + " = " + Literal(d, kv.Value)
		}
	}
	return strings.Join(preds, " AND ")
}

// LookupQuery fetches one column of the row identified by key
func LookupQuery(d models.Driver, table, column string, key []KeyValue) string {
	return "SELECT " + column + " FROM " + table + " WHERE " + EqualityPredicates(d, key)
}

// UpdateQuery builds a parameterized UPDATE of the columns in set for the
// row identified by key. NULL key values compare with IS NULL.
func UpdateQuery(d models.Driver, table string, set []KeyValue, key []KeyValue) (string, []any) {
	args := make([]any, 0, len(set)+len(key))
	n := 0

	assignments := make([]string, len(set))
	for i, kv := range set {
		n++
		assignments[i] = QuoteIdent(kv.Column) + " = " + Placeholder(d, n)
		args = append(args, kv.Value)
	}

	preds := make([]string, len(key))
	for i, kv := range key {
		if kv.Value == nil {
			preds[i] = QuoteIdent(kv.Column) + " IS NULL"
			continue
		}
		n++
		preds[i] = QuoteIdent(kv.Column) + " = " + Placeholder(d, n)
		args = append(args, kv.Value)
	}

	query := "UPDATE " + QuoteTable(table) + " SET " + strings.Join(assignments, ", ")
	if len(preds) > 0 {
		query += " WHERE " + strings.Join(preds, " AND ")
	}
	return query, args
}
