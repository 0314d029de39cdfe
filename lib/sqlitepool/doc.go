// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the connection pool behind kiln's run history.
//
// The history database is small (a result row and a handful of job
// rows per run) and sees one writer per kiln invocation, so the pool
// and its pragmas are tuned for that shape rather than for a server
// workload: WAL so listings read beside a run being recorded, NORMAL
// synchronous because a lost run is recoverable from the release
// store, an aggressive WAL autocheckpoint because the process exits
// after every command, and a small page cache because the whole file
// usually fits in it. The pragma list in pool.go documents each
// setting.
//
// Callers [Pool.Take] a connection, work, and [Pool.Put] it back.
// Connections are not safe for concurrent use; the pool is.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path: cfg.History.Path,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// The package stays thin on purpose: it exposes the zombiezen types
// directly, and callers write SQL with sqlitex.Execute and manage
// transactions with sqlitex.ImmediateTransaction. No query builder,
// no ORM layer.
package sqlitepool
