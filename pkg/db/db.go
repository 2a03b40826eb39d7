// Package db provides the persistence layer used by the server. It wraps a
// database/sql connection to SQLite (the default) or PostgreSQL and exposes
// helpers for OAuth token records, the generation log, shared results and the
// cache mirror. Callers open a single DB with Open and reuse it for every
// operation. Queries are written with ? placeholders and rebound for the
// active dialect.
package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Storage drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a sql.DB connection and exposes helper methods for the
// application's persistence layer.
type DB struct {
	*sql.DB
	driver string
	now    func() time.Time
}

// Columns used in range predicates (generations.created_at and the
// cache_entries times) hold Unix milliseconds. SQLite would otherwise compare
// the driver's text timestamps, whose fractional part varies in length.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tokens (user_id TEXT PRIMARY KEY, token TEXT NOT NULL, issued_at TIMESTAMP NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS generations (id INTEGER PRIMARY KEY AUTOINCREMENT, provider TEXT, feature TEXT, success BOOLEAN, latency_ms INTEGER, error TEXT, created_at INTEGER)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, data BLOB, created_at INTEGER, expires_at INTEGER)`,
	`CREATE TABLE IF NOT EXISTS shares (id TEXT PRIMARY KEY, feature TEXT, content TEXT, created_at TIMESTAMP)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tokens (user_id TEXT PRIMARY KEY, token TEXT NOT NULL, issued_at TIMESTAMPTZ NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS generations (id BIGSERIAL PRIMARY KEY, provider TEXT, feature TEXT, success BOOLEAN, latency_ms BIGINT, error TEXT, created_at BIGINT)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, data BYTEA, created_at BIGINT, expires_at BIGINT)`,
	`CREATE TABLE IF NOT EXISTS shares (id TEXT PRIMARY KEY, feature TEXT, content TEXT, created_at TIMESTAMPTZ)`,
}

// New opens the SQLite database located at path, creating the file and the
// schema when needed.
func New(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

// Open connects with driver ("sqlite" or "postgres") to dsn and ensures the
// schema exists.
func Open(driver, dsn string) (*DB, error) {
	var (
		sqlDriver string
		stmts     []string
	)
	switch driver {
	case DriverSQLite, "":
		driver, sqlDriver, stmts = DriverSQLite, "sqlite3", sqliteSchema
	case DriverPostgres:
		sqlDriver, stmts = "pgx", postgresSchema
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
	d, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// A :memory: database exists per connection.
		d.SetMaxOpenConns(1)
	}
	for _, s := range stmts {
		if _, err := d.Exec(s); err != nil {
			d.Close()
			return nil, fmt.Errorf("init db: %w", err)
		}
	}
	return &DB{DB: d, driver: driver, now: time.Now}, nil
}

// Driver returns the storage driver name.
func (db *DB) Driver() string { return db.driver }

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (db *DB) rebind(q string) string {
	if db.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.rebind(q), args...)
}

func (db *DB) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return db.QueryContext(ctx, db.rebind(q), args...)
}

func (db *DB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return db.QueryRowContext(ctx, db.rebind(q), args...)
}

func unixMilli(t time.Time) int64 { return t.UnixMilli() }

func fromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// randomString returns a URL-safe base64 string with n bytes of entropy. It is
// used for generating non-guessable IDs.
func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
