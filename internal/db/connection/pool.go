package connection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// Pool wraps pgxpool for Postgres profiles
type Pool struct {
	pool     *pgxpool.Pool
	database string
}

// PoolOptions tunes the pgx pool
type PoolOptions struct {
	MaxConns int32
}

// NewPool creates a new connection pool against database
func NewPool(ctx context.Context, profile models.ConnectionProfile, database string, opts PoolOptions) (*Pool, error) {
	connString, err := buildConnectionString(profile, database)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	poolConfig.MaxConns = 5
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Pool{
		pool:     pool,
		database: database,
	}, nil
}

// Driver implements Handle
func (p *Pool) Driver() models.Driver {
	return models.DriverPostgres
}

// Database returns the database the pool is connected to
func (p *Pool) Database() string {
	return p.database
}

// Close closes the connection pool
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping tests the connection
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Query executes a query and returns column names in order
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (*QueryResult, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	typeMap := rows.Conn().TypeMap()

	columns := make([]Column, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columns[i] = Column{Name: fd.Name}
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			columns[i].TypeName = t.Name
		}
	}

	var results [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		results = append(results, values)
	}

	return &QueryResult{
		Columns: columns,
		Rows:    results,
	}, rows.Err()
}

// Execute executes a statement without returning rows (INSERT, UPDATE, DELETE, CREATE, etc.)
func (p *Pool) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	result, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// buildConnectionString creates a PostgreSQL key/value connection string
func buildConnectionString(profile models.ConnectionProfile, database string) (string, error) {
	port, err := profile.PortNumber()
	if err != nil {
		return "", err
	}
	if database == "" {
		database = models.DefaultAdminDatabase
	}

	parts := []string{
		"host=" + quoteConnValue(profile.Host),
		fmt.Sprintf("port=%d", port),
		"database=" + quoteConnValue(database),
		"sslmode=prefer",
	}
	if profile.Username != "" {
		parts = append(parts, "user="+quoteConnValue(profile.Username))
	}
	if profile.Password != "" {
		parts = append(parts, "password="+quoteConnValue(profile.Password))
	}

	return strings.Join(parts, " "), nil
}

// quoteConnValue quotes a libpq keyword value when it holds spaces, quotes
// or backslashes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
