package discovery

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rebeliceyang/lazydb/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultPorts are the default PostgreSQL ports to scan
var DefaultPorts = []int{5432, 5433, 5434, 5435}

// DefaultScanTimeout bounds each port probe
const DefaultScanTimeout = 2 * time.Second

// Scanner probes TCP ports for listening servers
type Scanner struct {
	timeout time.Duration
}

// NewScanner creates a new scanner. A zero timeout uses DefaultScanTimeout.
func NewScanner(timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Scanner{timeout: timeout}
}

// ScanPorts returns a profile for every port on host that accepts a TCP
// connection, in the order the ports were given.
func (s *Scanner) ScanPorts(ctx context.Context, host string, ports []int) []models.ConnectionProfile {
	if len(ports) == 0 {
		ports = DefaultPorts
	}

	open := make([]bool, len(ports))

	g, ctx := errgroup.WithContext(ctx)
	for i, port := range ports {
		g.Go(func() error {
			open[i] = s.probe(ctx, host, port)
			return nil
		})
	}
	_ = g.Wait()

	var profiles []models.ConnectionProfile
	for i, port := range ports {
		if !open[i] {
			continue
		}
		p := models.ConnectionProfile{
			Driver: models.DriverPostgres,
			Host:   host,
			Port:   strconv.Itoa(port),
		}
		p.Name = profileName(p)
		profiles = append(profiles, p)
	}
	return profiles
}

func (s *Scanner) probe(ctx context.Context, host string, port int) bool {
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
