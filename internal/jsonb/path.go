package jsonb

import (
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a value inside a JSON document (e.g. $.user.tags[0])
type Path struct {
	Parts []string
}

// ParsePath accepts $.a.b[0], a.b[0] and a.b.0
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, ".")

	var parts []string
	for _, segment := range strings.Split(s, ".") {
		if segment == "" {
			if s == "" {
				break
			}
			return Path{}, fmt.Errorf("empty segment in path %q", s)
		}
		for segment != "" {
			open := strings.IndexByte(segment, '[')
			if open < 0 {
				parts = append(parts, segment)
				break
			}
			if open > 0 {
				parts = append(parts, segment[:open])
			}
			end := strings.IndexByte(segment, ']')
			if end < open {
				return Path{}, fmt.Errorf("unbalanced brackets in path %q", s)
			}
			index := segment[open+1 : end]
			if _, err := strconv.Atoi(index); err != nil {
				return Path{}, fmt.Errorf("invalid array index %q", index)
			}
			parts = append(parts, index)
			segment = segment[end+1:]
		}
	}
	return Path{Parts: parts}, nil
}

// String returns the path in $.a.b[0] notation
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range p.Parts {
		if _, err := strconv.Atoi(part); err == nil {
			b.WriteString("[" + part + "]")
		} else {
			b.WriteString("." + part)
		}
	}
	return b.String()
}

// PostgreSQLPath returns the text[] literal used with the #> operator
func (p Path) PostgreSQLPath() string {
	return "{" + strings.Join(p.Parts, ",") + "}"
}

// Lookup decodes data and returns the value at path
func Lookup(data []byte, path Path) (any, error) {
	current, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	for _, part := range path.Parts {
		switch curr := current.(type) {
		case map[string]any:
			val, ok := curr[part]
			if !ok {
				return nil, fmt.Errorf("key '%s' not found", part)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid array index: %s", part)
			}
			if idx < 0 || idx >= len(curr) {
				return nil, fmt.Errorf("array index out of bounds: %d", idx)
			}
			current = curr[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %s at %s", Kind(curr), part)
		}
	}
	return current, nil
}
