package secrets

import (
	"errors"
	"log/slog"

	"github.com/rebeliceyang/lazydb/internal/models"
)

// Finder looks profiles up by name
type Finder interface {
	Find(name string) (models.ConnectionProfile, error)
}

// Passwords returns the stored password of a profile
type Passwords interface {
	Get(p models.ConnectionProfile) (string, error)
}

// ProfileSource fills in keyring passwords for server profiles saved
// without one.
type ProfileSource struct {
	profiles  Finder
	passwords Passwords
	logger    *slog.Logger
}

// NewProfileSource wraps profiles. A nil passwords disables the lookup.
func NewProfileSource(profiles Finder, passwords Passwords, logger *slog.Logger) *ProfileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileSource{profiles: profiles, passwords: passwords, logger: logger}
}

// Find returns the named profile with its password filled in
func (s *ProfileSource) Find(name string) (models.ConnectionProfile, error) {
	p, err := s.profiles.Find(name)
	if err != nil {
		return p, err
	}
	if s.passwords == nil || p.Password != "" || p.Driver.IsFileBased() {
		return p, nil
	}

	password, err := s.passwords.Get(p)
	switch {
	case err == nil:
		p.Password = password
	case errors.Is(err, ErrPasswordNotFound):
	default:
		s.logger.Warn("keyring lookup failed", "profile", p.Name, "error", err)
	}
	return p, nil
}
