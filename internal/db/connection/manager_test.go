package connection

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/rebeliceyang/lazydb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteProfile(name, path string) models.ConnectionProfile {
	return models.ConnectionProfile{Driver: models.DriverSQLite, Name: name, Path: path}
}

func TestManager_OpenSQLite(t *testing.T) {
	path := testutil.NewSQLiteFile(t, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	ctx := context.Background()

	h, err := m.Open(ctx, "tab1", sqliteProfile("t1", path))
	require.NoError(t, err)
	assert.Equal(t, models.DriverSQLite, h.Driver())

	got, err := m.Get("tab1")
	require.NoError(t, err)
	assert.Same(t, h, got)

	info, err := m.Info("tab1")
	require.NoError(t, err)
	assert.Equal(t, "t1", info.Profile.Name)

	require.NoError(t, m.Close("tab1"))
	_, err = m.Get("tab1")
	assert.ErrorIs(t, err, ErrScopeNotFound)
}

func TestManager_OpenMissingFileDoesNotCreateIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))

	_, err := m.Open(context.Background(), "tab1", sqliteProfile("t1", path))
	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	assert.Contains(t, openErr.Error(), "does not exist")
	assert.NoFileExists(t, path)

	_, err = m.Get("tab1")
	assert.ErrorIs(t, err, ErrScopeNotFound)
}

func TestManager_OpenDirectoryFails(t *testing.T) {
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	_, err := m.Open(context.Background(), "tab1", sqliteProfile("t1", t.TempDir()))
	var openErr *OpenError
	assert.True(t, errors.As(err, &openErr))
}

func TestManager_OpenValidatesBeforeConnecting(t *testing.T) {
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	_, err := m.Open(context.Background(), "tab1", models.ConnectionProfile{Driver: models.DriverPostgres, Name: "pg", Host: "db", Port: "abc"})

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, m.Scopes())
}

func TestManager_ReopenReplacesHandle(t *testing.T) {
	first := testutil.NewSQLiteFile(t)
	second := testutil.NewSQLiteFile(t)
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	ctx := context.Background()

	h1, err := m.Open(ctx, "tab1", sqliteProfile("a", first))
	require.NoError(t, err)
	h2, err := m.Open(ctx, "tab1", sqliteProfile("b", second))
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Error(t, h1.Ping(ctx), "previous handle must be closed")
	assert.Equal(t, []string{"tab1"}, m.Scopes())

	info, err := m.Info("tab1")
	require.NoError(t, err)
	assert.Equal(t, "b", info.Profile.Name)
}

func TestManager_ScopesAreIndependent(t *testing.T) {
	path := testutil.NewSQLiteFile(t)
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	ctx := context.Background()

	_, err := m.Open(ctx, "tab1", sqliteProfile("t1", path))
	require.NoError(t, err)
	_, err = m.Open(ctx, "tab2", sqliteProfile("t1", path))
	require.NoError(t, err)

	require.NoError(t, m.Close("tab1"))
	h2, err := m.Get("tab2")
	require.NoError(t, err)
	assert.NoError(t, h2.Ping(ctx))

	require.NoError(t, m.CloseAll())
	assert.Empty(t, m.Scopes())
}

func TestManager_DoSerializesPerScope(t *testing.T) {
	path := testutil.NewSQLiteFile(t)
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	ctx := context.Background()
	_, err := m.Open(ctx, "tab1", sqliteProfile("t1", path))
	require.NoError(t, err)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Do(ctx, "tab1", func(h Handle) error {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
}

func TestManager_OpenQueuedBehindCloseRegistersHandle(t *testing.T) {
	path := testutil.NewSQLiteFile(t)
	m := NewManager(WithLogger(testutil.NewTestLogger(t)))
	ctx := context.Background()

	_, err := m.Open(ctx, "tab", sqliteProfile("t1", path))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	doErr := make(chan error, 1)
	go func() {
		doErr <- m.Do(ctx, "tab", func(Handle) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	closeErr := make(chan error, 1)
	go func() { closeErr <- m.Close("tab") }()
	// the semaphore queues waiters in arrival order
	time.Sleep(50 * time.Millisecond)

	type opened struct {
		h   Handle
		err error
	}
	openRes := make(chan opened, 1)
	go func() {
		h, err := m.Open(ctx, "tab", sqliteProfile("t1", path))
		openRes <- opened{h, err}
	}()
	time.Sleep(50 * time.Millisecond)

	close(release)
	require.NoError(t, <-doErr)
	require.NoError(t, <-closeErr)
	res := <-openRes
	require.NoError(t, res.err)

	got, err := m.Get("tab")
	require.NoError(t, err)
	assert.Same(t, res.h, got)
	assert.Equal(t, []string{"tab"}, m.Scopes())

	require.NoError(t, m.Do(ctx, "tab", func(h Handle) error {
		assert.Same(t, res.h, h)
		return nil
	}))
	require.NoError(t, m.Close("tab"))
}

func TestManager_DoUnknownScope(t *testing.T) {
	m := NewManager()
	err := m.Do(context.Background(), "nope", func(Handle) error { return nil })
	assert.ErrorIs(t, err, ErrScopeNotFound)
	assert.ErrorIs(t, m.Close("nope"), ErrScopeNotFound)
}

func TestManager_Test(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	assert.NoError(t, m.Test(ctx, sqliteProfile("t1", testutil.NewSQLiteFile(t))))
	assert.Empty(t, m.Scopes())

	err := m.Test(ctx, sqliteProfile("t1", filepath.Join(t.TempDir(), "nope.db")))
	var openErr *OpenError
	assert.True(t, errors.As(err, &openErr))
}

func TestSQLHandle_QueryAndExecute(t *testing.T) {
	path := testutil.NewSQLiteFile(t,
		"CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, data BLOB)",
		"INSERT INTO items (id, label, data) VALUES (1, 'one', x'0102'), (2, NULL, NULL)",
	)
	ctx := context.Background()
	h, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer h.Close()

	res, err := h.Query(ctx, "SELECT id, label, data FROM items ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "data"}, res.ColumnNames())
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(1), res.Rows[0][0])
	assert.EqualValues(t, "one", res.Rows[0][1])
	assert.Equal(t, []byte{1, 2}, res.Rows[0][2])
	assert.Nil(t, res.Rows[1][1])

	n, err := h.Execute(ctx, "UPDATE items SET label = ? WHERE id = ?", "uno", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBuildConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		profile  models.ConnectionProfile
		database string
		want     string
	}{
		{
			name:    "defaults to admin database",
			profile: models.ConnectionProfile{Driver: models.DriverPostgres, Host: "localhost", Port: "5432", Username: "app"},
			want:    "host=localhost port=5432 database=postgres sslmode=prefer user=app",
		},
		{
			name:     "quotes password",
			profile:  models.ConnectionProfile{Driver: models.DriverPostgres, Host: "db", Port: "6543", Username: "app", Password: `it's a secret`},
			database: "shop",
			want:     `host=db port=6543 database=shop sslmode=prefer user=app password='it\'s a secret'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildConnectionString(tt.profile, tt.database)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
