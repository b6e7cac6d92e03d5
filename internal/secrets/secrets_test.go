package secrets

import (
	"errors"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/rebeliceyang/lazydb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *PasswordStore {
	t.Helper()
	store, err := NewPasswordStore(Options{
		Dir:          t.TempDir(),
		FileOnly:     true,
		FilePassword: func() (string, error) { return "test-password", nil },
	})
	require.NoError(t, err)
	return store
}

var server = models.ConnectionProfile{
	Driver:   models.DriverPostgres,
	Name:     "prod",
	Host:     "db.internal",
	Port:     "5432",
	Username: "app",
}

func TestPasswordStore_FileBackend(t *testing.T) {
	store := newFileStore(t)
	assert.True(t, store.IsUsingFallback())

	_, err := store.Get(server)
	assert.ErrorIs(t, err, ErrPasswordNotFound)

	require.NoError(t, store.Save(server, ""))
	_, err = store.Get(server)
	assert.ErrorIs(t, err, ErrPasswordNotFound)

	require.NoError(t, store.Save(server, "s3cret"))
	pw, err := store.Get(server)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	other := server
	other.Database = "shop"
	_, err = store.Get(other)
	assert.ErrorIs(t, err, ErrPasswordNotFound)

	require.NoError(t, store.Delete(server))
	require.NoError(t, store.Delete(server))
	_, err = store.Get(server)
	assert.ErrorIs(t, err, ErrPasswordNotFound)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "db.internal:5432::app", Key(server))
}

type finder map[string]models.ConnectionProfile

func (f finder) Find(name string) (models.ConnectionProfile, error) {
	p, ok := f[name]
	if !ok {
		return p, errors.New("profile not found")
	}
	return p, nil
}

type passwords struct {
	pw  string
	err error
}

func (p passwords) Get(models.ConnectionProfile) (string, error) { return p.pw, p.err }

func TestProfileSource_Find(t *testing.T) {
	withPassword := server
	withPassword.Name = "explicit"
	withPassword.Password = "inline"
	file := models.ConnectionProfile{Driver: models.DriverSQLite, Name: "local", Path: "/tmp/app.db"}
	profiles := finder{"prod": server, "explicit": withPassword, "local": file}
	logger := testutil.NewTestLogger(t)

	src := NewProfileSource(profiles, passwords{pw: "from-keyring"}, logger)

	p, err := src.Find("prod")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", p.Password)

	p, err = src.Find("explicit")
	require.NoError(t, err)
	assert.Equal(t, "inline", p.Password)

	p, err = src.Find("local")
	require.NoError(t, err)
	assert.Empty(t, p.Password)

	_, err = src.Find("missing")
	assert.Error(t, err)

	p, err = NewProfileSource(profiles, passwords{err: ErrPasswordNotFound}, logger).Find("prod")
	require.NoError(t, err)
	assert.Empty(t, p.Password)

	p, err = NewProfileSource(profiles, passwords{err: errors.New("locked")}, logger).Find("prod")
	require.NoError(t, err)
	assert.Empty(t, p.Password)

	p, err = NewProfileSource(profiles, nil, logger).Find("prod")
	require.NoError(t, err)
	assert.Empty(t, p.Password)
}

func TestParseField(t *testing.T) {
	out := "  \"IOPlatformSerialNumber\" = \"C02\"\n  \"IOPlatformUUID\" = \"1234-ABCD\"\n"
	assert.Equal(t, "1234-ABCD", parseField(out, "IOPlatformUUID", "="))
	assert.Equal(t, "", parseField(out, "Missing", "="))
}
