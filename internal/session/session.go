// Package session drives one browsing scope. Requests from the presentation
// layer return immediately and run in arrival order on a single worker, so
// no two queries ever share the scope's connection at once. Results and
// errors are published through a Presenter.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/projection"
	"github.com/rebeliceyang/lazydb/internal/db/recordset"
	"github.com/rebeliceyang/lazydb/internal/models"
)

var (
	// ErrNoConnection is reported for a request that needs a connection
	// before one was selected
	ErrNoConnection = errors.New("no connection selected")
	// ErrNoTable is reported for a request that needs a loaded table
	ErrNoTable = errors.New("no table selected")

	errSuperseded = errors.New("superseded by a newer request")
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultQueryTimeout   = 30 * time.Second
)

// ProfileSource looks up connection profiles by name
type ProfileSource interface {
	Find(name string) (models.ConnectionProfile, error)
}

// Options configures a Session
type Options struct {
	// Scope names the connection scope. A random one is used when empty.
	Scope             string
	Logger            *slog.Logger
	PageSize          int
	FetchAllThreshold int
	ConnectTimeout    time.Duration
	QueryTimeout      time.Duration
}

// level orders the requests that replace browsing state. A request
// supersedes pending requests at its own level and deeper ones.
type level int

const (
	levelConnection level = iota
	levelDatabase
	levelTable
	levelFilter
	levelCount
)

type ticket struct {
	level level
	gens  [levelCount]uint64
}

type job struct {
	name    string
	ticket  *ticket
	timeout time.Duration
	run     func(ctx context.Context, t *ticket) error
}

// Session serializes browsing operations on one scope
type Session struct {
	scope     string
	manager   *connection.Manager
	profiles  ProfileSource
	presenter Presenter
	planner   *projection.Planner
	logger    *slog.Logger
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	closed  bool
	gens    [levelCount]uint64
	pending sync.WaitGroup
	stopped chan struct{}

	stateMu  sync.Mutex
	profile  *models.ConnectionProfile
	database string
	records  *recordset.RecordSet
}

// New starts a session worker. Close must be called to stop it.
func New(manager *connection.Manager, profiles ProfileSource, presenter Presenter, opts Options) *Session {
	if opts.Scope == "" {
		opts.Scope = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		scope:     opts.Scope,
		manager:   manager,
		profiles:  profiles,
		presenter: presenter,
		planner:   projection.NewPlanner(opts.Logger),
		logger:    opts.Logger.With("scope", opts.Scope),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.run()
	return s
}

// Scope returns the connection scope name
func (s *Session) Scope() string {
	return s.scope
}

// RecordSet returns the loaded table, or nil. Call it after Wait; the
// record set is owned by the worker while requests are running.
func (s *Session) RecordSet() *recordset.RecordSet {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.records
}

// Connection returns the selected profile and database
func (s *Session) Connection() (models.ConnectionProfile, string, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.profile == nil {
		return models.ConnectionProfile{}, "", false
	}
	return *s.profile, s.database, true
}

// Wait blocks until every queued request has finished
func (s *Session) Wait() {
	s.pending.Wait()
}

// Close drops queued requests, cancels the running one, and closes the
// scope's connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	<-s.stopped

	s.setState(nil, "", nil)
	if err := s.manager.Close(s.scope); err != nil && !errors.Is(err, connection.ErrScopeNotFound) {
		return err
	}
	return nil
}

func (s *Session) enqueue(name string, guarded bool, lvl level, timeout time.Duration, run func(ctx context.Context, t *ticket) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var t *ticket
	if guarded {
		s.gens[lvl]++
		t = &ticket{level: lvl, gens: s.gens}
	}

	s.pending.Add(1)
	s.queue = append(s.queue, job{name: name, ticket: t, timeout: timeout, run: run})
	s.cond.Signal()
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		j, ok := s.next()
		if !ok {
			return
		}
		s.execute(j)
		s.pending.Done()
	}
}

func (s *Session) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		for range s.queue {
			s.pending.Done()
		}
		s.queue = nil
		return job{}, false
	}

	j := s.queue[0]
	s.queue = s.queue[1:]
	return j, true
}

func (s *Session) execute(j job) {
	if s.stale(j.ticket) {
		s.logger.Debug("request superseded before start", "op", j.name)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, j.timeout)
	defer cancel()

	start := time.Now()
	err := j.run(ctx, j.ticket)
	switch {
	case err == nil:
		s.logger.Debug("request finished", "op", j.name, "duration", time.Since(start))
	case errors.Is(err, errSuperseded) || s.stale(j.ticket):
		s.logger.Debug("request superseded", "op", j.name)
	default:
		s.logger.Warn("request failed", "op", j.name, "error", err)
		s.presenter.ReportError(err.Error())
	}
}

// stale reports whether a newer request at the ticket's level, or at a
// level it depends on, has been queued since the ticket was issued.
func (s *Session) stale(t *ticket) bool {
	if t == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := levelConnection; l <= t.level; l++ {
		if s.gens[l] != t.gens[l] {
			return true
		}
	}
	return false
}

func (s *Session) setState(profile *models.ConnectionProfile, database string, records *recordset.RecordSet) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.profile = profile
	s.database = database
	s.records = records
}

func (s *Session) setRecords(records *recordset.RecordSet) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.records = records
}

func (s *Session) recordOptions() recordset.Options {
	return recordset.Options{
		PageSize:          s.opts.PageSize,
		FetchAllThreshold: s.opts.FetchAllThreshold,
		Logger:            s.logger,
		OnDirtyChange:     s.presenter.SetDirty,
	}
}
