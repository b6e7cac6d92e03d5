// Package jsonb detects, formats and navigates JSON held in cell values.
package jsonb

import (
	"bytes"
	"encoding/json"
)

// IsJSON reports whether data holds a JSON object or array. Scalars are
// not treated as JSON since most plain cell values parse as one.
func IsJSON(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return false
	}
	return json.Valid(data)
}

// Kind returns the JSON type of a decoded value (object, array, string,
// number, boolean, null)
func Kind(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
