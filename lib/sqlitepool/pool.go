// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is the connection count when the configuration
// leaves it unset. Kiln is a short-lived CLI: the run-history workload
// is one writer recording a finished run, with at most a concurrent
// listing reading beside it. Two connections cover that; anything more
// just holds file descriptors open.
const DefaultPoolSize = 2

// historyPragmas is applied to every connection before it enters the
// pool. The settings are sized for the run-history database: a file of
// at most a few megabytes, written once per run, read by list/show.
var historyPragmas = []string{
	// Concurrent readers beside the single writer, so "kiln history
	// list" never blocks on a run being recorded.
	"PRAGMA journal_mode=WAL",
	// Survives a process crash. A run lost to a power failure can be
	// re-derived from the release store, so full durability is not
	// worth fsync-per-commit.
	"PRAGMA synchronous=NORMAL",
	// Two kiln processes may share the database (a run finishing while
	// history list runs); wait for the write lock instead of
	// surfacing SQLITE_BUSY to the user.
	"PRAGMA busy_timeout=5000",
	// The CLI exits after every command; checkpoint early so the WAL
	// file stays small between invocations.
	"PRAGMA wal_autocheckpoint=256",
	// 2 MB page cache. The whole database usually fits.
	"PRAGMA cache_size=-2048",
	"PRAGMA temp_store=MEMORY",
}

// Config holds the parameters for opening a connection pool.
type Config struct {
	// Path is the database file, created if absent. ":memory:" works
	// for tests but requires PoolSize 1, since every in-memory
	// connection is its own database.
	Path string

	// PoolSize is the connection count. Zero or negative means
	// DefaultPoolSize.
	PoolSize int

	// Logger receives pool lifecycle messages. Nil discards.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas,
	// typically to apply the schema. An error here discards the
	// connection and surfaces from Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size SQLite connection pool with kiln's run-history
// pragmas applied to every connection.
//
// The pool is safe for concurrent use; individual connections are not.
// Each goroutine must Take its own connection and Put it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open opens the pool. Connections are established lazily on first
// Take, so a bad OnConnect surfaces there, not here. The caller must
// Close the pool.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range historyPragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if cfg.OnConnect == nil {
				return nil
			}
			if err := cfg.OnConnect(conn); err != nil {
				return fmt.Errorf("sqlitepool: OnConnect: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", size)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Pair every Take with a Put, usually via defer.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a borrowed connection. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection, blocking until borrowed ones come
// back. Take errors afterwards.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}
