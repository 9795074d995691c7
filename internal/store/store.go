// Package store provides the transaction store behind the explorer grid.
// It runs on SQLite (modernc.org/sqlite) or PostgreSQL (pgx) and answers
// grid queries with server-side filtering, sorting and pagination.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownColumn is returned when a query sorts or filters on a column
// the store does not expose.
var ErrUnknownColumn = errors.New("unknown column")

// Config selects and configures the backing database.
type Config struct {
	Driver string
	// Path is the SQLite database file. ":memory:" opens a private
	// in-memory database.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string

	Logger *slog.Logger
}

type dialect struct {
	name  string
	goose string
	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string
}

var (
	sqliteDialect = dialect{
		name:        DriverSQLite,
		goose:       "sqlite3",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:        DriverPostgres,
		goose:       "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// Store reads and writes explorer transactions.
type Store struct {
	db      *sql.DB
	dialect dialect
	path    string
	logger  *slog.Logger
}

// Open connects to the database described by cfg. It does not migrate.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch d.name {
	case DriverPostgres:
		connCfg, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
		}
		db = stdlib.OpenDB(*connCfg)
	default:
		db, err = sql.Open("sqlite", sqliteDSN(cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if cfg.Path == ":memory:" || cfg.Path == "" {
			// Every pooled connection would get its own empty database.
			db.SetMaxOpenConns(1)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.name, err)
	}

	s := New(db, d.name, cfg.Logger)
	s.path = cfg.Path
	s.logger.Debug("store opened", "driver", d.name, "path", cfg.Path)
	return s, nil
}

// New wraps an open database handle. driver selects the SQL dialect and
// defaults to SQLite.
func New(db *sql.DB, driver string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d, err := dialectFor(driver)
	if err != nil {
		d = sqliteDialect
	}
	return &Store{db: db, dialect: d, logger: logger}
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the SQLite file path, or "" for PostgreSQL and in-memory
// stores.
func (s *Store) Path() string {
	if s.dialect.name != DriverSQLite || s.path == ":memory:" {
		return ""
	}
	return s.path
}

// Driver returns the store driver name.
func (s *Store) Driver() string {
	return s.dialect.name
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind rewrites ? placeholders for the store dialect.
func (s *Store) rebind(query string) string {
	if s.dialect.name == DriverSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
