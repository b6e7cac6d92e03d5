package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Driver identifies the database backend a profile connects to
type Driver string

const (
	DriverSQLite   Driver = "SQLite"
	DriverPostgres Driver = "PostgreSQL"
)

// DefaultAdminDatabase is used for Postgres connections made before a
// target database has been chosen.
const DefaultAdminDatabase = "postgres"

// ParseDriver maps user input to a known driver
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unknown driver %q", s)
	}
}

// IsFileBased reports whether the driver attaches to a local file
func (d Driver) IsFileBased() bool {
	return d == DriverSQLite
}

// Known reports whether the driver is supported
func (d Driver) Known() bool {
	return d == DriverSQLite || d == DriverPostgres
}

// ConnectionProfile describes how to reach one data source.
// All fields are strings so that the persisted form stays flat; Port is
// parsed only when a connection is made.
type ConnectionProfile struct {
	Driver   Driver `json:"driver" yaml:"driver"`
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
}

// ValidationError reports malformed profile input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the profile before any database call is made
func (p ConnectionProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !p.Driver.Known() {
		return &ValidationError{Field: "driver", Message: fmt.Sprintf("unsupported driver %q", p.Driver)}
	}

	if p.Driver.IsFileBased() {
		if strings.TrimSpace(p.Path) == "" {
			return &ValidationError{Field: "path", Message: "path is required"}
		}
		return nil
	}

	if strings.TrimSpace(p.Host) == "" {
		return &ValidationError{Field: "host", Message: "host is required"}
	}
	if _, err := p.PortNumber(); err != nil {
		return &ValidationError{Field: "port", Message: err.Error()}
	}
	return nil
}

// PortNumber parses the stored port text
func (p ConnectionProfile) PortNumber() (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(p.Port))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", p.Port)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// Normalized returns a copy with the name trimmed
func (p ConnectionProfile) Normalized() ConnectionProfile {
	p.Name = strings.TrimSpace(p.Name)
	return p
}

// Label returns a human readable description used in logs and lists
func (p ConnectionProfile) Label() string {
	if p.Driver.IsFileBased() {
		return fmt.Sprintf("%s (%s)", p.Name, p.Path)
	}
	return fmt.Sprintf("%s (%s@%s:%s)", p.Name, p.Username, p.Host, p.Port)
}
