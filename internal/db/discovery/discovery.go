// Package discovery finds PostgreSQL servers that can be saved as profiles:
// the PG* environment, the password file and open ports on a host.
package discovery

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/rebeliceyang/lazydb/internal/models"
)

// Source tells where a candidate was found. Lower values win when the same
// server is found twice.
type Source int

const (
	SourceEnvironment Source = iota
	SourcePgPass
	SourcePortScan
)

func (s Source) String() string {
	switch s {
	case SourceEnvironment:
		return "environment"
	case SourcePgPass:
		return "pgpass"
	case SourcePortScan:
		return "port scan"
	default:
		return "unknown"
	}
}

// Candidate is a discovered server described as an unsaved profile
type Candidate struct {
	Profile models.ConnectionProfile
	Source  Source
}

// Options configures a Discoverer
type Options struct {
	// Getenv defaults to os.Getenv
	Getenv func(string) string
	// PgPassPath overrides $PGPASSFILE and ~/.pgpass
	PgPassPath string
	// Scan enables probing ScanHost on Ports
	Scan     bool
	ScanHost string
	Ports    []int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Discoverer coordinates all discovery methods
type Discoverer struct {
	opts Options
}

// NewDiscoverer creates a new discoverer
func NewDiscoverer(opts Options) *Discoverer {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.PgPassPath == "" {
		opts.PgPassPath = PgPassPath(opts.Getenv)
	}
	if opts.ScanHost == "" {
		opts.ScanHost = "localhost"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Discoverer{opts: opts}
}

// Discover runs every enabled method and returns one candidate per server,
// ordered by source and then name.
func (d *Discoverer) Discover(ctx context.Context) []Candidate {
	var candidates []Candidate

	// 1. Environment variables
	if p, ok := FromEnvironment(d.opts.Getenv); ok {
		candidates = append(candidates, Candidate{Profile: p, Source: SourceEnvironment})
	}

	// 2. Password file
	entries, err := ParsePgPass(d.opts.PgPassPath)
	if err != nil {
		d.opts.Logger.Warn("skipping password file", "path", d.opts.PgPassPath, "error", err)
	}
	for _, p := range FromPgPass(entries) {
		candidates = append(candidates, Candidate{Profile: p, Source: SourcePgPass})
	}

	// 3. Open ports
	if d.opts.Scan {
		scanner := NewScanner(d.opts.Timeout)
		for _, p := range scanner.ScanPorts(ctx, d.opts.ScanHost, d.opts.Ports) {
			if p.Password == "" {
				p.Password = FindPassword(entries, p.Host, p.Port, p.Database, p.Username)
			}
			candidates = append(candidates, Candidate{Profile: p, Source: SourcePortScan})
		}
	}

	candidates = deduplicate(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Source != candidates[j].Source {
			return candidates[i].Source < candidates[j].Source
		}
		return candidates[i].Profile.Name < candidates[j].Profile.Name
	})
	return candidates
}

// deduplicate keeps the highest priority candidate per host and port
func deduplicate(candidates []Candidate) []Candidate {
	seen := make(map[string]int)
	result := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := c.Profile.Host + ":" + c.Profile.Port
		if i, ok := seen[key]; ok {
			if c.Source < result[i].Source {
				result[i] = c
			}
			continue
		}
		seen[key] = len(result)
		result = append(result, c)
	}
	return result
}
