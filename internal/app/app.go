// Package app wires configuration, logging, profiles, connections and
// query history into the services the command line works with.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazydb/internal/config"
	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/query"
	"github.com/rebeliceyang/lazydb/internal/favorites"
	"github.com/rebeliceyang/lazydb/internal/history"
	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/rebeliceyang/lazydb/internal/profiles"
	"github.com/rebeliceyang/lazydb/internal/secrets"
	"github.com/rebeliceyang/lazydb/internal/session"
)

var (
	// ErrHistoryDisabled is returned by History when history.enabled is false
	ErrHistoryDisabled = errors.New("query history is disabled")
	// ErrKeyringDisabled is returned by Secrets when security.keyring is false
	ErrKeyringDisabled = errors.New("keyring is disabled")
)

// App holds the long-lived services of one process
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Profiles *profiles.Registry
	Manager  *connection.Manager

	history   *history.Store
	favorites *favorites.Manager
	secrets   *secrets.PasswordStore
}

// New loads the profile store named by cfg and creates a connection manager
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.GetDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := profiles.NewRegistry(cfg.General.ProfilesPath)
	if err != nil {
		return nil, err
	}

	manager := connection.NewManager(
		connection.WithLogger(logger),
		connection.WithPoolSize(cfg.Performance.ConnectionPoolSize),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Profiles: registry,
		Manager:  manager,
	}, nil
}

// NewLogger builds the process logger from the log settings
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewSession starts a browsing session publishing to presenter
func (a *App) NewSession(presenter session.Presenter) *session.Session {
	return session.New(a.Manager, a.ProfileSource(), presenter, session.Options{
		Logger:            a.Logger,
		PageSize:          a.Config.Data.PageSize,
		FetchAllThreshold: a.Config.Data.FetchAllThreshold,
		ConnectTimeout:    a.Config.Performance.ConnectTimeoutDuration(),
		QueryTimeout:      a.Config.Performance.QueryTimeoutDuration(),
	})
}

// ProfileSource finds saved profiles, filling in keyring passwords when the
// keyring is enabled
func (a *App) ProfileSource() *secrets.ProfileSource {
	if !a.Config.Security.Keyring {
		return secrets.NewProfileSource(a.Profiles, nil, a.Logger)
	}
	return secrets.NewProfileSource(a.Profiles, keyringPasswords{a}, a.Logger)
}

// Secrets opens the keyring on first use
func (a *App) Secrets() (*secrets.PasswordStore, error) {
	if !a.Config.Security.Keyring {
		return nil, ErrKeyringDisabled
	}
	if a.secrets == nil {
		store, err := secrets.NewPasswordStore(secrets.Options{
			Dir:      a.Config.Security.KeyringDir,
			FileOnly: strings.EqualFold(a.Config.Security.KeyringBackend, "file"),
		})
		if err != nil {
			return nil, err
		}
		a.secrets = store
	}
	return a.secrets, nil
}

// keyringPasswords defers opening the keyring until a password is needed
type keyringPasswords struct {
	a *App
}

func (k keyringPasswords) Get(p models.ConnectionProfile) (string, error) {
	store, err := k.a.Secrets()
	if err != nil {
		return "", err
	}
	return store.Get(p)
}

// History opens the query history store on first use
func (a *App) History() (*history.Store, error) {
	if !a.Config.History.Enabled {
		return nil, ErrHistoryDisabled
	}
	if a.history == nil {
		store, err := history.NewStore(a.Config.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.history = store
	}
	return a.history, nil
}

// Favorites loads the saved queries on first use
func (a *App) Favorites() (*favorites.Manager, error) {
	if a.favorites == nil {
		m, err := favorites.NewManager(a.Config.General.FavoritesPath)
		if err != nil {
			return nil, err
		}
		a.favorites = m
	}
	return a.favorites, nil
}

// RunQuery executes sql on a profile in a scope of its own and records it in
// the query history. The query's own failure is reported in the result.
func (a *App) RunQuery(ctx context.Context, profileName, database, sql string) (models.QueryResult, error) {
	profile, err := a.ProfileSource().Find(profileName)
	if err != nil {
		return models.QueryResult{}, err
	}

	scope := "query-" + uuid.NewString()
	connectCtx, cancel := context.WithTimeout(ctx, a.Config.Performance.ConnectTimeoutDuration())
	if database != "" {
		_, err = a.Manager.OpenDatabase(connectCtx, scope, profile, database)
	} else {
		_, err = a.Manager.Open(connectCtx, scope, profile)
	}
	cancel()
	if err != nil {
		return models.QueryResult{}, err
	}
	defer func() { _ = a.Manager.Close(scope) }()

	queryCtx, cancel := context.WithTimeout(ctx, a.Config.Performance.QueryTimeoutDuration())
	defer cancel()

	var result models.QueryResult
	err = a.Manager.Do(queryCtx, scope, func(h connection.Handle) error {
		result = query.Execute(queryCtx, h, sql)
		return nil
	})
	if err != nil {
		return models.QueryResult{}, err
	}

	a.record(ctx, profile.Name, database, sql, result)
	return result, nil
}

func (a *App) record(ctx context.Context, profileName, database, sql string, result models.QueryResult) {
	store, err := a.History()
	if err != nil {
		if !errors.Is(err, ErrHistoryDisabled) {
			a.Logger.Warn("history unavailable", "error", err)
		}
		return
	}

	entry := models.HistoryEntry{
		ProfileName:  profileName,
		DatabaseName: database,
		Query:        sql,
		ExecutedAt:   time.Now(),
		Duration:     result.Duration,
		RowsAffected: result.RowsAffected,
		Success:      result.Error == nil,
	}
	if result.Error != nil {
		entry.ErrorMessage = result.Error.Error()
	}
	if _, err := store.Add(ctx, entry); err != nil {
		a.Logger.Warn("failed to record query", "error", err)
		return
	}
	if limit := a.Config.History.MaxEntries; limit > 0 {
		if _, err := store.Prune(ctx, limit); err != nil {
			a.Logger.Warn("failed to prune history", "error", err)
		}
	}
}

// Close closes every open connection and the history store
func (a *App) Close() error {
	err := a.Manager.CloseAll()
	if a.history != nil {
		err = errors.Join(err, a.history.Close())
	}
	return err
}
