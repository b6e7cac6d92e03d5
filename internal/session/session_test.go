package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/rebeliceyang/lazydb/internal/profiles"
	"github.com/rebeliceyang/lazydb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cell struct {
	display  string
	redacted bool
}

type recorder struct {
	mu        sync.Mutex
	errors    []string
	columns   [][]string
	rowCount  int64
	dirty     []bool
	cells     map[[2]int]cell
	databases []string
	tables    []string
	shown     map[[2]int][]byte
}

func newRecorder() *recorder {
	return &recorder{cells: make(map[[2]int]cell), shown: make(map[[2]int][]byte)}
}

func (r *recorder) ReportError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *recorder) SetRowCount(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowCount = n
}

func (r *recorder) SetDirty(dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = append(r.dirty, dirty)
}

func (r *recorder) SetColumns(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.columns = append(r.columns, names)
	r.cells = make(map[[2]int]cell)
}

func (r *recorder) SetCellValue(row, col int, display string, redacted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells[[2]int{row, col}] = cell{display: display, redacted: redacted}
}

func (r *recorder) SetDatabases(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.databases = names
}

func (r *recorder) SetTables(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = names
}

func (r *recorder) ShowValue(row, col int, value []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown[[2]int{row, col}] = value
}

func (r *recorder) lastDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dirty) == 0 {
		return false
	}
	return r.dirty[len(r.dirty)-1]
}

func (r *recorder) dirtyChanges() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.dirty...)
}

func (r *recorder) resetDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = nil
}

func (r *recorder) lastColumns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.columns) == 0 {
		return nil
	}
	return r.columns[len(r.columns)-1]
}

type fixture struct {
	session  *Session
	view     *recorder
	manager  *connection.Manager
	database string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	long := strings.Repeat("x", 2000)
	dbPath := testutil.NewSQLiteFile(t,
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, bio TEXT)",
		"INSERT INTO users VALUES (1, 'ann', '"+long+"'), (2, 'bob', '"+long+"')",
		"CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)",
		"INSERT INTO employees VALUES (1, 'cyd', 25), (2, 'dee', 35), (3, 'eve', 45)",
	)

	registry, err := profiles.NewRegistry(filepath.Join(t.TempDir(), "connections.json"))
	require.NoError(t, err)
	require.NoError(t, registry.Add(models.ConnectionProfile{Driver: models.DriverSQLite, Name: "t1", Path: dbPath}))
	require.NoError(t, registry.Add(models.ConnectionProfile{Driver: models.DriverSQLite, Name: "gone", Path: filepath.Join(t.TempDir(), "missing.db")}))

	logger := testutil.NewTestLogger(t)
	manager := connection.NewManager(connection.WithLogger(logger))
	view := newRecorder()
	s := New(manager, registry, view, Options{Scope: "tab-1", Logger: logger})
	t.Cleanup(func() { _ = s.Close() })

	return &fixture{session: s, view: view, manager: manager, database: dbPath}
}

func TestSession_BrowseAndEdit(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.Wait()
	assert.Equal(t, []string{"employees", "users"}, view.tables)
	assert.Equal(t, []string{"tab-1"}, f.manager.Scopes())

	s.SelectTable("users")
	s.Wait()
	require.Empty(t, view.errors)
	assert.Equal(t, []string{"id", "name", "bio"}, view.lastColumns())
	assert.Equal(t, int64(2), view.rowCount)
	assert.Equal(t, cell{display: "ann"}, view.cells[[2]int{0, 1}])
	assert.Equal(t, cell{display: "[BLOB]", redacted: true}, view.cells[[2]int{0, 2}])

	s.ActivateCell(1, 2)
	s.Wait()
	assert.Equal(t, strings.Repeat("x", 2000), string(view.shown[[2]int{1, 2}]))

	s.EditCell(0, 1, "anne")
	s.Wait()
	assert.True(t, view.lastDirty())
	assert.Equal(t, "anne", view.cells[[2]int{0, 1}].display)

	s.RequestSave()
	s.Wait()
	require.Empty(t, view.errors)
	assert.False(t, view.lastDirty())

	h, err := f.manager.Get("tab-1")
	require.NoError(t, err)
	res, err := h.Query(context.Background(), "SELECT name FROM users WHERE id = 1")
	require.NoError(t, err)
	assert.EqualValues(t, "anne", res.Rows[0][0])
}

func TestSession_FilterAndDiscard(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.SelectTable("employees")
	s.SubmitFilter("age > 30")
	s.Wait()
	require.Empty(t, view.errors)
	assert.Equal(t, int64(2), view.rowCount)
	assert.Equal(t, "age > 30", s.RecordSet().Filter())

	s.SubmitFilter("no_such_column > 1")
	s.Wait()
	require.Len(t, view.errors, 1)
	assert.Contains(t, view.errors[0], "no_such_column")
	assert.Equal(t, "age > 30", s.RecordSet().Filter())

	s.EditCell(0, 1, "changed")
	s.RequestDiscard()
	s.Wait()
	assert.False(t, view.lastDirty())
	assert.Equal(t, "dee", view.cells[[2]int{0, 1}].display)

	s.SortBy(2, true)
	s.Wait()
	assert.Equal(t, "eve", view.cells[[2]int{0, 1}].display)

	s.SubmitFilter("")
	s.Wait()
	assert.Equal(t, int64(3), view.rowCount)
}

func TestSession_RowCountShownWhenDataQueryFails(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.SelectTable("employees")
	s.SortBy(2, true)
	s.Wait()
	require.Empty(t, view.errors)
	assert.Equal(t, int64(3), view.rowCount)

	// the count query accepts the trailing LIMIT, the ordered data query does not
	s.SubmitFilter("age > 30 LIMIT 1")
	s.Wait()

	require.Len(t, view.errors, 1)
	assert.Equal(t, int64(2), view.rowCount)
	assert.Equal(t, "", s.RecordSet().Filter())
}

func TestSession_DirtyChangesAreEdgeTriggered(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.SelectTable("employees")
	s.Wait()
	view.resetDirty()

	s.EditCell(0, 1, "changed")
	s.EditCell(1, 1, "again")
	s.RequestDiscard()
	s.SubmitFilter("age > 30")
	s.Wait()
	require.Empty(t, view.errors)
	assert.Equal(t, []bool{true, false}, view.dirtyChanges())

	view.resetDirty()
	s.EditCell(0, 1, "changed")
	s.SelectTable("users")
	s.Wait()
	require.Empty(t, view.errors)
	assert.Equal(t, []bool{true, false}, view.dirtyChanges())
}

func TestSession_SupersededRequestsAreDropped(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.Wait()

	gate := make(chan struct{})
	s.enqueue("gate", false, 0, DefaultQueryTimeout, func(context.Context, *ticket) error {
		<-gate
		return nil
	})
	s.SelectTable("users")
	s.SubmitFilter("id = 1")
	s.SelectTable("employees")
	close(gate)
	s.Wait()

	require.Empty(t, view.errors)
	view.mu.Lock()
	defer view.mu.Unlock()
	for _, cols := range view.columns {
		assert.NotContains(t, cols, "bio")
	}
	assert.Equal(t, "employees", s.RecordSet().Table())
	assert.Equal(t, "", s.RecordSet().Filter())
}

func TestSession_DependentRequestsAreKept(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	// a table request does not supersede the connection it depends on
	s.SelectConnection("t1")
	s.SelectTable("employees")
	s.SubmitFilter("age < 30")
	s.Wait()

	require.Empty(t, view.errors)
	assert.Equal(t, int64(1), view.rowCount)
}

func TestSession_Stale(t *testing.T) {
	s := &Session{}
	issue := func(lvl level) *ticket {
		s.gens[lvl]++
		return &ticket{level: lvl, gens: s.gens}
	}

	conn := issue(levelConnection)
	table := issue(levelTable)
	assert.False(t, s.stale(conn))
	assert.False(t, s.stale(table))

	filter := issue(levelFilter)
	assert.False(t, s.stale(table))
	assert.False(t, s.stale(filter))

	issue(levelDatabase)
	assert.False(t, s.stale(conn))
	assert.True(t, s.stale(table))
	assert.True(t, s.stale(filter))
	assert.False(t, s.stale(nil))
}

func TestSession_Errors(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectTable("users")
	s.RequestSave()
	s.SelectConnection("nope")
	s.Wait()

	require.Len(t, view.errors, 3)
	assert.Equal(t, ErrNoConnection.Error(), view.errors[0])
	assert.Equal(t, ErrNoTable.Error(), view.errors[1])
	assert.Contains(t, view.errors[2], "profile not found")

	s.SelectConnection("gone")
	s.Wait()
	require.Len(t, view.errors, 4)
	assert.Contains(t, view.errors[3], "does not exist")
	_, _, ok := s.Connection()
	assert.False(t, ok)
	assert.Empty(t, f.manager.Scopes())
}

func TestSession_RedactedCellCannotBeEdited(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.SelectTable("users")
	s.EditCell(0, 2, "short")
	s.Wait()

	require.Len(t, view.errors, 1)
	assert.Contains(t, view.errors[0], "redacted")
	assert.False(t, view.lastDirty())
}

func TestSession_CloseDropsQueuedRequests(t *testing.T) {
	f := newFixture(t)
	s, view := f.session, f.view

	s.SelectConnection("t1")
	s.Wait()

	started := make(chan struct{})
	s.enqueue("block", false, 0, DefaultQueryTimeout, func(ctx context.Context, _ *ticket) error {
		close(started)
		<-ctx.Done()
		return nil
	})
	s.SelectTable("users")
	<-started

	require.NoError(t, s.Close())
	s.Wait()

	assert.Nil(t, view.lastColumns())
	assert.Empty(t, f.manager.Scopes())

	// requests after close are ignored
	s.SelectTable("users")
	s.Wait()
}
