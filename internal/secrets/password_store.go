// Package secrets keeps profile passwords in the OS keyring, with an
// encrypted file as the fallback backend.
package secrets

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/99designs/keyring"
	"github.com/rebeliceyang/lazydb/internal/models"
)

const serviceName = "lazydb"

// ErrPasswordNotFound is returned when the keyring holds no password for a
// profile
var ErrPasswordNotFound = errors.New("password not found in keyring")

// Options configures a PasswordStore
type Options struct {
	// Dir holds the encrypted files of the file backend
	Dir string
	// FileOnly skips the native keyring
	FileOnly bool
	// FilePassword overrides the machine derived file password
	FilePassword func() (string, error)
}

// PasswordStore handles secure password storage using OS keyring with file fallback
type PasswordStore struct {
	ring          keyring.Keyring
	usingFallback bool
}

// NewPasswordStore creates a new password store with platform-appropriate backends
func NewPasswordStore(opts Options) (*PasswordStore, error) {
	backends := backendsForPlatform()
	if opts.FileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}
	filePassword := opts.FilePassword
	if filePassword == nil {
		filePassword = deriveFilePassword
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:     serviceName,
		AllowedBackends: backends,
		FileDir:         opts.Dir,
		FilePasswordFunc: func(string) (string, error) {
			return filePassword()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return &PasswordStore{
		ring:          ring,
		usingFallback: usingFallback(backends),
	}, nil
}

// backendsForPlatform returns the backend priority for the current OS
func backendsForPlatform() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend, keyring.FileBackend}
	case "linux":
		return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.FileBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend, keyring.FileBackend}
	default:
		return []keyring.BackendType{keyring.FileBackend}
	}
}

// usingFallback reports whether no native backend can serve the request
func usingFallback(requested []keyring.BackendType) bool {
	if len(requested) == 1 && requested[0] == keyring.FileBackend {
		return true
	}
	for _, b := range keyring.AvailableBackends() {
		if b != keyring.FileBackend {
			return false
		}
	}
	return true
}

// IsUsingFallback returns true if the password store is using the file backend
// instead of the native OS keyring
func (ps *PasswordStore) IsUsingFallback() bool {
	return ps.usingFallback
}

// Save stores the password of a server profile. Empty passwords are not
// stored.
func (ps *PasswordStore) Save(p models.ConnectionProfile, password string) error {
	if password == "" {
		return nil
	}

	err := ps.ring.Set(keyring.Item{
		Key:         Key(p),
		Data:        []byte(password),
		Label:       fmt.Sprintf("lazydb: %s", p.Label()),
		Description: fmt.Sprintf("%s connection password for lazydb", p.Driver),
	})
	if err != nil {
		return fmt.Errorf("failed to save password to keyring: %w", err)
	}
	return nil
}

// Get retrieves the password of a profile
func (ps *PasswordStore) Get(p models.ConnectionProfile) (string, error) {
	item, err := ps.ring.Get(Key(p))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrPasswordNotFound
		}
		return "", fmt.Errorf("failed to read password from keyring: %w", err)
	}
	return string(item.Data), nil
}

// Delete removes the password of a profile. A missing password is not an
// error.
func (ps *PasswordStore) Delete(p models.ConnectionProfile) error {
	err := ps.ring.Remove(Key(p))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}

// Key identifies a profile's password: host:port:database:user
func Key(p models.ConnectionProfile) string {
	return fmt.Sprintf("%s:%s:%s:%s", p.Host, p.Port, p.Database, p.Username)
}
