package jsonb

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Format pretty-prints JSON with two space indentation
func Format(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return buf.String(), nil
}

// Compact formats JSON on a single line
func Compact(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return buf.String(), nil
}

// FormatValue pretty-prints a decoded value. Strings are returned without
// quotes.
func FormatValue(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format: %w", err)
	}
	return string(out), nil
}
