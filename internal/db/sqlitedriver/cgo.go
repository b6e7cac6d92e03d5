//go:build !purego

package sqlitedriver

import _ "github.com/mattn/go-sqlite3"

// Name is the database/sql driver name
const Name = "sqlite3"
