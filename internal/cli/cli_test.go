package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	configPath string
	dbPath     string
	bio        string
	dir        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	bio := strings.Repeat("lorem ipsum ", 200)
	dbPath := testutil.NewSQLiteFile(t,
		"CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)",
		"INSERT INTO employees VALUES (1, 'ann', 25), (2, 'bob', 41), (3, 'cat', 35)",
		"CREATE TABLE users (id INTEGER PRIMARY KEY, bio TEXT)",
		fmt.Sprintf("INSERT INTO users VALUES (1, '%s')", bio),
	)

	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf(`general:
  profiles_path: %s
  favorites_path: %s
history:
  path: %s
log:
  level: error
security:
  keyring_backend: file
  keyring_dir: %s
`, filepath.Join(dir, "connections.json"), filepath.Join(dir, "favorites.yaml"), filepath.Join(dir, "history.db"), filepath.Join(dir, "keyring"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	f := &fixture{configPath: configPath, dbPath: dbPath, bio: bio, dir: dir}
	_, _, err := f.run(t, "profile", "add", "local", "--driver", "sqlite", "--path", dbPath)
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"profile", "databases", "tables", "browse", "resolve", "edit", "query", "history", "export", "favorite"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestProfileCommands(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "local")
	assert.Contains(t, out, f.dbPath)

	_, _, err = f.run(t, "profile", "test", "local")
	require.NoError(t, err)

	_, _, err = f.run(t, "profile", "add", "broken", "--driver", "postgres")
	assert.Error(t, err)

	_, _, err = f.run(t, "profile", "remove", "local")
	require.NoError(t, err)
	out, _, err = f.run(t, "profile", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, f.dbPath)
}

func TestTablesAndDatabases(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "tables", "local")
	require.NoError(t, err)
	assert.Contains(t, out, "employees")
	assert.Contains(t, out, "users")

	out, _, err = f.run(t, "databases", "local")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")
}

func TestBrowse(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "browse", "local", "employees", "--filter", "age > 30", "--sort", "name", "--desc")
	require.NoError(t, err)
	assert.NotContains(t, out, "ann")
	require.Contains(t, out, "bob")
	require.Contains(t, out, "cat")
	assert.Less(t, strings.Index(out, "cat"), strings.Index(out, "bob"))
	assert.Contains(t, out, "(2 of 2 rows)")

	out, _, err = f.run(t, "browse", "local", "employees", "--filter", "age > 30", "--where", "name~b%")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")
	assert.NotContains(t, out, "cat")
	assert.Contains(t, out, "(1 of 1 rows)")

	out, _, err = f.run(t, "browse", "local", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "[BLOB]")
	assert.NotContains(t, out, "lorem")
}

func TestBrowse_ReportsErrors(t *testing.T) {
	f := newFixture(t)

	_, stderr, err := f.run(t, "browse", "local", "missing")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "error:")

	_, _, err = f.run(t, "browse", "nobody", "employees")
	assert.ErrorIs(t, err, errReported)

	_, _, err = f.run(t, "browse", "local", "employees", "--sort", "salary")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "resolve", "local", "users", "--row", "1", "--col", "bio")
	require.NoError(t, err)
	assert.Equal(t, f.bio+"\n", out)

	_, _, err = f.run(t, "resolve", "local", "users", "--row", "0", "--col", "bio")
	assert.Error(t, err)
}

func TestFormatResolved(t *testing.T) {
	doc := []byte(`{"user":{"tags":["a","b"]}}`)

	s, err := formatResolved(doc, false, "")
	require.NoError(t, err)
	assert.Equal(t, string(doc), s)

	s, err = formatResolved(doc, true, "")
	require.NoError(t, err)
	assert.Contains(t, s, "\n  \"user\": {")

	s, err = formatResolved(doc, false, "user.tags[1]")
	require.NoError(t, err)
	assert.Equal(t, "b", s)

	_, err = formatResolved(doc, false, "user.name")
	assert.Error(t, err)

	s, err = formatResolved([]byte("not json"), true, "")
	require.NoError(t, err)
	assert.Equal(t, "not json", s)
}

func TestEditThenQuery(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "edit", "local", "employees", "--row", "1", "--col", "age", "--value", "77")
	require.NoError(t, err)
	assert.Contains(t, out, "saved employees.age row 1")

	out, _, err = f.run(t, "query", "local", "SELECT age FROM employees WHERE id = 1")
	require.NoError(t, err)
	assert.Contains(t, out, "77")
	assert.Contains(t, out, "(1 rows")

	_, stderr, err := f.run(t, "edit", "local", "users", "--row", "1", "--col", "bio", "--value", "short")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "error:")
}

func TestQueryAndHistory(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run(t, "query", "local", "SELECT name FROM employees")
	require.NoError(t, err)
	_, _, err = f.run(t, "query", "local", "SELECT nope FROM employees")
	assert.Error(t, err)

	out, _, err := f.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT name FROM employees")
	assert.Contains(t, out, "SELECT nope FROM employees")

	out, _, err = f.run(t, "history", "--search", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT nope FROM employees")
	assert.NotContains(t, out, "SELECT name FROM employees")
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "users.json")

	out, _, err := f.run(t, "export", "local", "users", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 rows")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Equal(t, []map[string]string{{"id": "1", "bio": "[BLOB]"}}, rows)

	csvPath := filepath.Join(f.dir, "older.csv")
	_, _, err = f.run(t, "export", "local", "employees", "--filter", "age > 30", "--out", csvPath)
	require.NoError(t, err)
	data, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "id,name,age\n2,bob,41\n3,cat,35\n", string(data))
}

func TestProfileDiscover(t *testing.T) {
	f := newFixture(t)
	t.Setenv("PGHOST", "db.example")
	t.Setenv("PGPORT", "6543")
	t.Setenv("PGUSER", "app")
	t.Setenv("PGDATABASE", "")
	t.Setenv("PGPASSWORD", "")
	t.Setenv("PGPASSFILE", filepath.Join(f.dir, "missing"))

	out, _, err := f.run(t, "profile", "discover", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "environment")
	assert.Contains(t, out, "app@db.example:6543")
	assert.Contains(t, out, "saved 1 new profiles")

	out, _, err = f.run(t, "profile", "discover", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 0 new profiles")

	out, _, err = f.run(t, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PostgreSQL")
}

func TestFavorites(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run(t, "favorite", "add", "older", "local", "SELECT name FROM employees WHERE age > 30 ORDER BY name", "--tag", "hr")
	require.NoError(t, err)
	_, _, err = f.run(t, "favorite", "add", "orphan", "nobody", "SELECT 1")
	assert.Error(t, err)

	out, _, err := f.run(t, "favorite", "run", "older")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "cat")
	assert.NotContains(t, out, "ann")

	out, _, err = f.run(t, "favorite", "list", "--search", "hr")
	require.NoError(t, err)
	assert.Contains(t, out, "older")
	assert.NotContains(t, out, "never")

	path := filepath.Join(f.dir, "favorites.json")
	_, _, err = f.run(t, "favorite", "export", "--out", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, _, err = f.run(t, "favorite", "remove", "older")
	require.NoError(t, err)
	_, _, err = f.run(t, "favorite", "run", "older")
	assert.Error(t, err)
}

func TestProfileAdd_Keyring(t *testing.T) {
	f := newFixture(t)
	t.Setenv("PGPASSFILE", filepath.Join(f.dir, "missing"))

	_, _, err := f.run(t, "profile", "add", "prod", "--driver", "postgres", "--host", "db.internal", "--user", "app", "--password", "s3cret", "--keyring")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.dir, "connections.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "db.internal")
	assert.NotContains(t, string(data), "s3cret")

	_, _, err = f.run(t, "profile", "remove", "prod")
	require.NoError(t, err)
}
