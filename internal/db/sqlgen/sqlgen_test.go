package sqlgen

import (
	"testing"
	"time"

	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCountQuery(t *testing.T) {
	assert.Equal(t, `SELECT COUNT(*) FROM "employees" WHERE age > 30`, CountQuery("employees", "age > 30"))
	assert.Equal(t, `SELECT COUNT(*) FROM "employees"`, CountQuery("employees", ""))
	assert.Equal(t, `SELECT COUNT(*) FROM "employees"`, CountQuery("employees", "   "))
	assert.Equal(t, `SELECT COUNT(*) FROM "sales"."orders"`, CountQuery("sales.orders", ""))
}

func TestProjectionQuery(t *testing.T) {
	got := ProjectionQuery("users", []ProjectedColumn{
		{Name: "id"},
		{Name: "bio", Redacted: true},
	}, "[BLOB]")
	assert.Equal(t, "SELECT id, '[BLOB]' as bio FROM users", got)

	got = ProjectionQuery("journal", []ProjectedColumn{
		{Name: "day", AsText: true},
		{Name: "body", Redacted: true, AsText: true},
	}, "[BLOB]")
	assert.Equal(t, "SELECT CAST(day AS TEXT) AS day, '[BLOB]' as body FROM journal", got)
}

func TestSizeSampleQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT AVG(length(bio)) FROM (SELECT cast(bio AS text) AS bio FROM users WHERE bio IS NOT NULL LIMIT 10) AS tmp",
		SizeSampleQuery("users", "bio", 10))
}

func TestDataQuery(t *testing.T) {
	base := "SELECT id FROM users"

	tests := []struct {
		name   string
		filter string
		order  *OrderBy
		limit  int
		offset int
		want   string
	}{
		{name: "plain", want: "SELECT id FROM users"},
		{name: "filter", filter: "age > 30", want: "SELECT id FROM users WHERE age > 30"},
		{name: "order", order: &OrderBy{Column: "id", Desc: true}, want: `SELECT id FROM users ORDER BY "id" DESC`},
		{name: "page", filter: "a = 1", limit: 100, offset: 200, want: "SELECT id FROM users WHERE a = 1 LIMIT 100 OFFSET 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DataQuery(base, tt.filter, tt.order, tt.limit, tt.offset))
		})
	}
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		driver models.Driver
		value  any
		want   string
	}{
		{name: "nil", value: nil, want: "NULL"},
		{name: "string", value: "O'Brien", want: "'O''Brien'"},
		{name: "bytes", value: []byte("abc"), want: "'abc'"},
		{name: "time", value: ts, want: "'2024-03-01 12:30:00+00:00'"},
		{name: "uuid", value: [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}, want: "'12345678-9abc-def0-1234-56789abcdef0'"},
		{name: "int", value: int64(7), want: "7"},
		{name: "float", value: 2.5, want: "2.5"},
		{name: "bool sqlite", driver: models.DriverSQLite, value: true, want: "1"},
		{name: "bool postgres", driver: models.DriverPostgres, value: false, want: "FALSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Literal(tt.driver, tt.value))
		})
	}
}

func TestLookupQuery(t *testing.T) {
	got := LookupQuery(models.DriverSQLite, "users", "bio", []KeyValue{{Column: "id", Value: int64(7)}})
	assert.Equal(t, "SELECT bio FROM users WHERE id = 7", got)

	got = LookupQuery(models.DriverSQLite, "t", "c", []KeyValue{
		{Column: "a", Value: "x'y"},
		{Column: "b", Value: nil},
	})
	assert.Equal(t, "SELECT c FROM t WHERE a = 'x''y' AND b IS NULL", got)

	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	got = LookupQuery(models.DriverPostgres, "accounts", "notes", []KeyValue{{Column: "id", Value: id}})
	assert.Equal(t, "SELECT notes FROM accounts WHERE id = '12345678-9abc-def0-1234-56789abcdef0'", got)
}

func TestUpdateQuery(t *testing.T) {
	q, args := UpdateQuery(models.DriverPostgres, "users",
		[]KeyValue{{Column: "name", Value: "bob"}, {Column: "age", Value: int64(3)}},
		[]KeyValue{{Column: "id", Value: int64(1)}, {Column: "tenant", Value: nil}})
	assert.Equal(t, `UPDATE "users" SET "name" = $1, "age" = $2 WHERE "id" = $3 AND "tenant" IS NULL`, q)
	assert.Equal(t, []any{"bob", int64(3), int64(1)}, args)

	q, args = UpdateQuery(models.DriverSQLite, "users",
		[]KeyValue{{Column: "name", Value: "bob"}},
		[]KeyValue{{Column: "id", Value: int64(1)}})
	assert.Equal(t, `UPDATE "users" SET "name" = ? WHERE "id" = ?`, q)
	assert.Equal(t, []any{"bob", int64(1)}, args)
}
