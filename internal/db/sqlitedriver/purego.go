//go:build purego

package sqlitedriver

import _ "modernc.org/sqlite"

// Name is the database/sql driver name
const Name = "sqlite"
