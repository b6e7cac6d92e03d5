// Package sqlitedriver registers the SQLite database/sql driver selected at
// build time. The default build links mattn/go-sqlite3; building with the
// purego tag switches to modernc.org/sqlite.
package sqlitedriver

import "net/url"

// DSN returns a data source name that opens an existing file read/write
// without creating it.
func DSN(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=rw"
}
