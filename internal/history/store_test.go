package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_AddAndGetRecent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, q := range []string{"SELECT 1", "SELECT 2", "UPDATE t SET a = 1"} {
		_, err := store.Add(ctx, models.HistoryEntry{
			ProfileName:  "t1",
			Query:        q,
			ExecutedAt:   base.Add(time.Duration(i) * time.Minute),
			Duration:     1500 * time.Millisecond,
			RowsAffected: int64(i),
			Success:      true,
		})
		require.NoError(t, err)
	}

	failed, err := store.Add(ctx, models.HistoryEntry{
		ProfileName:  "t1",
		DatabaseName: "app",
		Query:        "SELECT nope",
		ExecutedAt:   base.Add(time.Hour),
		ErrorMessage: "column does not exist",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, failed.ID)

	entries, err := store.GetRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT nope", entries[0].Query)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "app", entries[0].DatabaseName)
	assert.Equal(t, failed.ID, entries[0].ID)
	assert.True(t, entries[0].ExecutedAt.Equal(base.Add(time.Hour)))

	assert.Equal(t, "UPDATE t SET a = 1", entries[1].Query)
	assert.True(t, entries[1].Success)
	assert.Equal(t, 1500*time.Millisecond, entries[1].Duration)
	assert.Equal(t, int64(2), entries[1].RowsAffected)
}

func TestStore_Search(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, q := range []string{"SELECT * FROM users", "SELECT * FROM orders", "DELETE FROM users"} {
		_, err := store.Add(ctx, models.HistoryEntry{ProfileName: "t1", Query: q, Success: true})
		require.NoError(t, err)
	}

	entries, err := store.Search(ctx, "users", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.Search(ctx, "nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Prune(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.Add(ctx, models.HistoryEntry{
			ProfileName: "t1",
			Query:       "SELECT " + string(rune('a'+i)),
			ExecutedAt:  base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	removed, err := store.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	entries, err := store.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT e", entries[0].Query)
	assert.Equal(t, "SELECT d", entries[1].Query)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	_, err = store.Add(ctx, models.HistoryEntry{ProfileName: "t1", Query: "SELECT 1"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, err := store.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	entries, err := store.GetRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
