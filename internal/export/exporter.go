// Package export writes loaded rows to CSV or JSON files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is a loaded grid of display values. *recordset.RecordSet
// satisfies it.
type Table interface {
	Columns() []string
	Len() int
	DisplayRow(row int) []string
}

// Format selects the output encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name or a file extension
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ToFile writes table to path in the given format
func ToFile(table Table, format Format, path string) error {
	switch format {
	case FormatCSV:
		return ExportToCSV(table, path)
	case FormatJSON:
		return ExportToJSON(table, path)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportToCSV exports the loaded rows to a CSV file
func ExportToCSV(table Table, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return WriteCSV(file, table)
}

// WriteCSV writes a header row followed by one record per loaded row
func WriteCSV(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(table.Columns()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for row := 0; row < table.Len(); row++ {
		if err := writer.Write(table.DisplayRow(row)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportToJSON exports the loaded rows to a JSON file
func ExportToJSON(table Table, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return WriteJSON(file, table)
}

// WriteJSON writes an array with one object per loaded row, keyed by
// column name
func WriteJSON(w io.Writer, table Table) error {
	columns := table.Columns()
	records := make([]map[string]string, table.Len())
	for row := range records {
		values := table.DisplayRow(row)
		record := make(map[string]string, len(columns))
		for i, name := range columns {
			if i < len(values) {
				record[name] = values[i]
			}
		}
		records[row] = record
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to marshal rows to JSON: %w", err)
	}
	return nil
}
