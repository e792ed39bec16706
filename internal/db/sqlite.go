// Package db opens the single database handle used by the gateway. The
// driver is chosen from the connection string: SQLite (default), DuckDB or
// PostgreSQL through pgx.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers "duckdb"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"

	"sqlgate/internal/statement"
)

// Driver names registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

const pingTimeout = 5 * time.Second

// Target is a parsed connection string.
type Target struct {
	Driver     string
	DataSource string
	Dialect    statement.Dialect
}

// ParseTarget resolves a connection string into a driver and data source.
//
//	postgres://… / postgresql://…  → pgx
//	duckdb://path, duckdb::memory: → duckdb (empty path = in-memory)
//	sqlite://path, file:path, path → sqlite3
func ParseTarget(dsn string) (Target, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return Target{}, fmt.Errorf("database connection string is required")
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if _, err := url.Parse(dsn); err != nil {
			return Target{}, fmt.Errorf("invalid postgres connection string: %w", err)
		}
		return Target{Driver: DriverPostgres, DataSource: dsn, Dialect: statement.DialectDollar}, nil
	case strings.HasPrefix(dsn, "duckdb://"):
		return Target{Driver: DriverDuckDB, DataSource: strings.TrimPrefix(dsn, "duckdb://"), Dialect: statement.DialectQuestion}, nil
	case strings.HasPrefix(dsn, "duckdb:"):
		path := strings.TrimPrefix(dsn, "duckdb:")
		if path == ":memory:" {
			path = ""
		}
		return Target{Driver: DriverDuckDB, DataSource: path, Dialect: statement.DialectQuestion}, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return Target{Driver: DriverSQLite, DataSource: strings.TrimPrefix(dsn, "sqlite://"), Dialect: statement.DialectQuestion}, nil
	case strings.Contains(dsn, "://"):
		return Target{}, fmt.Errorf("unsupported database scheme in %q", redact(dsn))
	default:
		return Target{Driver: DriverSQLite, DataSource: dsn, Dialect: statement.DialectQuestion}, nil
	}
}

// Open opens a *sql.DB for t and verifies it with a ping.
//
// The pool is limited to one open connection: the gateway owns exactly one
// live connection and concurrent statements serialize at the driver.
func Open(ctx context.Context, t Target) (*sql.DB, error) {
	dataSource := t.DataSource
	if t.Driver == DriverSQLite {
		if err := ensureParentDir(dataSource); err != nil {
			return nil, err
		}
		dataSource = buildSQLiteDSN(dataSource)
	}

	db, err := sql.Open(t.Driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.Driver, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", t.Driver, err)
	}

	return db, nil
}

// buildSQLiteDSN appends hardened parameters to a SQLite path, keeping any
// parameters the caller already supplied.
func buildSQLiteDSN(path string) string {
	base, rawQuery, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}
	setDefault := func(k, v string) {
		if params.Get(k) == "" {
			params.Set(k, v)
		}
	}
	if !isMemory(base) {
		setDefault("_journal_mode", defaultJournalMode)
	}
	setDefault("_busy_timeout", defaultBusyTimeout)
	setDefault("_synchronous", defaultSynchronous)
	setDefault("_foreign_keys", "on")

	return base + "?" + params.Encode()
}

func ensureParentDir(path string) error {
	base, _, _ := strings.Cut(path, "?")
	base = strings.TrimPrefix(base, "file:")
	if isMemory(base) {
		return nil
	}
	dir := filepath.Dir(base)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

func isMemory(path string) bool {
	return path == "" || strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// redact hides the password of a URL-shaped connection string.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Redact returns t's data source with any password masked, for logging.
func (t Target) Redact() string {
	return redact(t.DataSource)
}
