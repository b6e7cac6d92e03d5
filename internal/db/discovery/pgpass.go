package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rebeliceyang/lazydb/internal/models"
)

const (
	defaultPort = "5432"
	wildcard    = "*"
)

// PgPassEntry represents a line in .pgpass file
type PgPassEntry struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// PgPassPath returns $PGPASSFILE, or ~/.pgpass when it is unset
func PgPassPath(getenv func(string) string) string {
	if path := getenv("PGPASSFILE"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pgpass")
}

// ParsePgPass reads a password file. A missing file yields no entries.
// Malformed lines are skipped.
func ParsePgPass(path string) ([]PgPassEntry, error) {
	if path == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	// libpq ignores group or world readable files
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%s has insecure permissions %v, must be 0600", path, info.Mode().Perm())
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var entries []PgPassEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parsePgPassLine(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// parsePgPassLine splits hostname:port:database:username:password,
// honoring \: and \\ escapes.
func parsePgPassLine(line string) (PgPassEntry, error) {
	parts := make([]string, 0, 5)
	var current strings.Builder
	escaped := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			current.WriteByte(ch)
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == ':':
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	parts = append(parts, current.String())

	if len(parts) != 5 {
		return PgPassEntry{}, fmt.Errorf("expected 5 fields, got %d", len(parts))
	}
	if parts[1] != wildcard {
		p, err := strconv.Atoi(parts[1])
		if err != nil || p < 1 || p > 65535 {
			return PgPassEntry{}, fmt.Errorf("invalid port: %s", parts[1])
		}
	}

	return PgPassEntry{
		Host:     parts[0],
		Port:     parts[1],
		Database: parts[2],
		User:     parts[3],
		Password: parts[4],
	}, nil
}

// FromPgPass turns entries into profiles. Entries with a wildcard host
// cannot be connected to and are skipped; other wildcards are left empty.
func FromPgPass(entries []PgPassEntry) []models.ConnectionProfile {
	profiles := make([]models.ConnectionProfile, 0, len(entries))
	for _, e := range entries {
		if e.Host == wildcard {
			continue
		}

		p := models.ConnectionProfile{
			Driver:   models.DriverPostgres,
			Host:     e.Host,
			Port:     orDefault(e.Port, defaultPort),
			Username: orDefault(e.User, ""),
			Password: e.Password,
			Database: orDefault(e.Database, ""),
		}
		p.Name = profileName(p)
		profiles = append(profiles, p)
	}
	return profiles
}

// FindPassword returns the password of the first entry matching the
// connection, or "" when none does.
func FindPassword(entries []PgPassEntry, host, port, database, user string) string {
	if port == "" {
		port = defaultPort
	}
	for _, e := range entries {
		if matches(e.Host, host) &&
			matches(e.Port, port) &&
			matches(e.Database, database) &&
			matches(e.User, user) {
			return e.Password
		}
	}
	return ""
}

// LookupPassword fills an empty profile password from the password file
func LookupPassword(getenv func(string) string, p models.ConnectionProfile) (string, error) {
	entries, err := ParsePgPass(PgPassPath(getenv))
	if err != nil {
		return "", err
	}
	database := p.Database
	if database == "" {
		database = models.DefaultAdminDatabase
	}
	return FindPassword(entries, p.Host, p.Port, database, p.Username), nil
}

// matches checks if pattern matches value (* is wildcard)
func matches(pattern, value string) bool {
	return pattern == wildcard || pattern == value
}

func orDefault(value, def string) string {
	if value == wildcard {
		return def
	}
	return value
}

func profileName(p models.ConnectionProfile) string {
	name := p.Host + ":" + p.Port
	if p.Username != "" {
		name = p.Username + "@" + name
	}
	if p.Database != "" {
		name += "/" + p.Database
	}
	return name
}
