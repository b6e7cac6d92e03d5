package models

import "time"

// QueryResult holds the outcome of a free-form query
type QueryResult struct {
	Columns      []string
	Rows         [][]string
	RowsAffected int64
	Duration     time.Duration
	Error        error
}

// HistoryEntry represents a single query history entry
type HistoryEntry struct {
	ID           string
	ProfileName  string
	DatabaseName string
	Query        string
	ExecutedAt   time.Time
	Duration     time.Duration
	RowsAffected int64
	Success      bool
	ErrorMessage string
}

// Favorite is a saved query bound to a profile
type Favorite struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Query       string    `yaml:"query"`
	Profile     string    `yaml:"profile"`
	Database    string    `yaml:"database,omitempty"`
	Tags        []string  `yaml:"tags,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at"`
	UsageCount  int       `yaml:"usage_count"`
	LastUsed    time.Time `yaml:"last_used,omitempty"`
}
