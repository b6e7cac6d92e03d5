// Package query runs free-form SQL typed by the user and formats driver
// values for display.
package query

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/sqlgen"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// NullDisplay is shown for NULL values
const NullDisplay = "NULL"

// Execute passes sql to the database unmodified and returns the results as
// display strings.
func Execute(ctx context.Context, h connection.Handle, sql string) models.QueryResult {
	start := time.Now()

	res, err := h.Query(ctx, sql)
	if err != nil {
		return models.QueryResult{
			Error:    err,
			Duration: time.Since(start),
		}
	}

	rows := make([][]string, len(res.Rows))
	for i, values := range res.Rows {
		row := make([]string, len(values))
		for j, v := range values {
			row[j] = FormatValue(v)
		}
		rows[i] = row
	}

	return models.QueryResult{
		Columns:      res.ColumnNames(),
		Rows:         rows,
		RowsAffected: int64(len(rows)),
		Duration:     time.Since(start),
	}
}

// FormatValue converts a database value to its display string
func FormatValue(val any) string {
	if valuer, ok := val.(driver.Valuer); ok {
		if inner, err := valuer.Value(); err == nil {
			val = inner
		}
	}

	switch v := val.(type) {
	case nil:
		return NullDisplay
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(sqlgen.TimeLayout)
	case [16]byte:
		return uuid.UUID(v).String()
	case map[string]any, []any:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(jsonBytes)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// RawBytes returns the bytes of a value as stored, or nil for NULL
func RawBytes(val any) []byte {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(FormatValue(v))
	}
}
