package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rebeliceyang/lazydb/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrScopeNotFound is returned when no handle is registered for a scope
var ErrScopeNotFound = errors.New("scope not found")

// OpenError reports a failed connection attempt. Its message is the raw
// driver error text.
type OpenError struct {
	Scope   string
	Profile string
	Err     error
}

func (e *OpenError) Error() string {
	return e.Err.Error()
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Manager owns live connection handles keyed by scope name
type Manager struct {
	scopes   map[string]*scope
	mu       sync.Mutex
	logger   *slog.Logger
	poolSize int32
}

// scope serializes access to its handle; at most one handle per scope
type scope struct {
	sem         *semaphore.Weighted
	handle      Handle
	profile     models.ConnectionProfile
	database    string
	connectedAt time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used by the manager
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPoolSize caps the number of server connections per Postgres scope
func WithPoolSize(n int) Option {
	return func(m *Manager) {
		m.poolSize = int32(n)
	}
}

// NewManager creates a new connection manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		scopes: make(map[string]*scope),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Info describes the handle registered for a scope
type Info struct {
	Scope       string
	Profile     models.ConnectionProfile
	Database    string
	ConnectedAt time.Time
}

// Open connects profile and registers the handle under scopeName. Postgres
// profiles connect to the administrative database so that databases can be
// listed before one is chosen.
func (m *Manager) Open(ctx context.Context, scopeName string, profile models.ConnectionProfile) (Handle, error) {
	database := ""
	if profile.Driver == models.DriverPostgres {
		database = models.DefaultAdminDatabase
	}
	return m.open(ctx, scopeName, profile, database)
}

// OpenDatabase reconnects scopeName to a specific database of a server profile
func (m *Manager) OpenDatabase(ctx context.Context, scopeName string, profile models.ConnectionProfile, database string) (Handle, error) {
	if profile.Driver.IsFileBased() {
		return m.Open(ctx, scopeName, profile)
	}
	return m.open(ctx, scopeName, profile, database)
}

func (m *Manager) open(ctx context.Context, scopeName string, profile models.ConnectionProfile, database string) (Handle, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	s, err := m.acquire(ctx, scopeName, true)
	if err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	if old := m.swap(s, nil, models.ConnectionProfile{}, ""); old != nil {
		m.logger.Debug("closing previous handle", "scope", scopeName)
		old.Close()
	}

	start := time.Now()
	handle, err := Dial(ctx, profile, database, PoolOptions{MaxConns: m.poolSize})
	if err != nil {
		m.forget(scopeName, s)
		m.logger.Warn("connection failed", "scope", scopeName, "profile", profile.Name, "error", err)
		return nil, &OpenError{Scope: scopeName, Profile: profile.Name, Err: err}
	}

	m.swap(s, handle, profile, database)

	m.logger.Info("connected",
		"scope", scopeName,
		"profile", profile.Name,
		"driver", string(profile.Driver),
		"database", database,
		"duration", time.Since(start))

	return handle, nil
}

// Dial opens a handle for profile without registering it
func Dial(ctx context.Context, profile models.ConnectionProfile, database string, opts PoolOptions) (Handle, error) {
	switch profile.Driver {
	case models.DriverSQLite:
		return OpenSQLite(ctx, profile.Path)
	case models.DriverPostgres:
		return NewPool(ctx, profile, database, opts)
	default:
		return nil, fmt.Errorf("unsupported driver %q", profile.Driver)
	}
}

// Test opens and immediately closes a connection for profile
func (m *Manager) Test(ctx context.Context, profile models.ConnectionProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	database := profile.Database
	if database == "" && profile.Driver == models.DriverPostgres {
		database = models.DefaultAdminDatabase
	}

	handle, err := Dial(ctx, profile, database, PoolOptions{MaxConns: 1})
	if err != nil {
		return &OpenError{Profile: profile.Name, Err: err}
	}
	handle.Close()
	return nil
}

// Close closes the handle registered for scopeName and releases the scope.
// It waits for an in-flight operation on the scope to finish.
func (m *Manager) Close(scopeName string) error {
	s, err := m.acquire(context.Background(), scopeName, false)
	if err != nil {
		return err
	}
	defer s.sem.Release(1)

	if old := m.swap(s, nil, models.ConnectionProfile{}, ""); old != nil {
		old.Close()
	}
	m.forget(scopeName, s)

	m.logger.Debug("scope closed", "scope", scopeName)
	return nil
}

// CloseAll closes every scope concurrently
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.scopes))
	for name := range m.scopes {
		names = append(names, name)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, name := range names {
		g.Go(func() error {
			if err := m.Close(name); err != nil && !errors.Is(err, ErrScopeNotFound) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Get returns the handle registered for scopeName
func (m *Manager) Get(scopeName string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[scopeName]
	if !ok || s.handle == nil {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, scopeName)
	}
	return s.handle, nil
}

// Do runs fn with the scope's handle while holding the scope exclusively.
// Operations on the same scope never overlap; different scopes proceed
// independently.
func (m *Manager) Do(ctx context.Context, scopeName string, fn func(Handle) error) error {
	s, err := m.acquire(ctx, scopeName, false)
	if err != nil {
		return err
	}
	defer s.sem.Release(1)

	if s.handle == nil {
		return fmt.Errorf("%w: %s", ErrScopeNotFound, scopeName)
	}
	return fn(s.handle)
}

// Info returns details of the handle registered for scopeName
func (m *Manager) Info(scopeName string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[scopeName]
	if !ok || s.handle == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrScopeNotFound, scopeName)
	}
	return Info{
		Scope:       scopeName,
		Profile:     s.profile,
		Database:    s.database,
		ConnectedAt: s.connectedAt,
	}, nil
}

// Scopes returns the registered scope names, sorted
func (m *Manager) Scopes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.scopes))
	for name, s := range m.scopes {
		if s.handle != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Register installs an already opened handle under scopeName, closing any
// previous one.
func (m *Manager) Register(ctx context.Context, scopeName string, handle Handle) error {
	s, err := m.acquire(ctx, scopeName, true)
	if err != nil {
		return err
	}
	defer s.sem.Release(1)

	if old := m.swap(s, handle, models.ConnectionProfile{Driver: handle.Driver()}, ""); old != nil {
		old.Close()
	}
	return nil
}

func (m *Manager) scope(name string, create bool) *scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[name]
	if !ok && create {
		s = &scope{sem: semaphore.NewWeighted(1)}
		m.scopes[name] = s
	}
	return s
}

// acquire locks the scope registered under name. A scope closed while the
// caller waited for it is released and the current registration is tried
// instead.
func (m *Manager) acquire(ctx context.Context, name string, create bool) (*scope, error) {
	for {
		s := m.scope(name, create)
		if s == nil {
			return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, name)
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}

		m.mu.Lock()
		current := m.scopes[name] == s
		m.mu.Unlock()
		if current {
			return s, nil
		}
		s.sem.Release(1)
	}
}

// swap replaces the scope's handle and returns the previous one
func (m *Manager) swap(s *scope, handle Handle, profile models.ConnectionProfile, database string) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := s.handle
	s.handle = handle
	s.profile = profile
	s.database = database
	s.connectedAt = time.Now()
	return old
}

func (m *Manager) forget(name string, s *scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scopes[name] == s {
		delete(m.scopes, name)
	}
}
