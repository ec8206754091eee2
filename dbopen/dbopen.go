// Package dbopen opens the SQLite page store with the pragmas every
// visedit process uses, and runs write transactions with a short retry on
// SQLITE_BUSY.
//
// Pragmas applied on every open:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 5000
//	synchronous  = NORMAL
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

type config struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues SQL to execute once the pragmas are set.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens the SQLite database at path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{busyTimeout: 5_000, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	stmts := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: %s: %w", s, err)
		}
	}
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory database closed at test cleanup.
// Open keeps a single connection for ":memory:" since every connection
// would otherwise be its own database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
