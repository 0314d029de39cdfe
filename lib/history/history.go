// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package history persists run results in a local SQLite database.
//
// Every completed run — including skipped ones — is recorded as one
// row in the runs table plus one row per job instance in run_jobs.
// The full RunResult is stored as a CBOR blob alongside the indexed
// columns, so listing is cheap and retrieval is lossless: the CLI's
// history commands reconstruct exactly the record the engine emitted.
package history

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kiln-build/kiln/lib/codec"
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/sqlitepool"
)

const schemaScript = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline TEXT NOT NULL,
	event_kind TEXT NOT NULL,
	ref TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	tag TEXT NOT NULL DEFAULT '',
	publish INTEGER NOT NULL DEFAULT 0,
	conclusion TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT '',
	completed_at TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	result BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_pipeline ON runs (pipeline, id);
CREATE INDEX IF NOT EXISTS runs_conclusion ON runs (conclusion, id);

CREATE TABLE IF NOT EXISTS run_jobs (
	run_id INTEGER NOT NULL,
	job TEXT NOT NULL,
	variant TEXT NOT NULL,
	outcome TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	failed_step TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS run_jobs_run ON run_jobs (run_id);
`

// Config holds the parameters for opening a history store.
type Config struct {
	// Path is the SQLite database file. Created if absent.
	Path string

	// PoolSize is the connection pool size. Zero means the
	// sqlitepool default.
	PoolSize int

	// Logger receives pool lifecycle messages. Optional.
	Logger *slog.Logger
}

// Store is a run history database. Safe for concurrent use.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens (creating if necessary) the history database at
// cfg.Path and applies the schema. The caller must Close the store.
func Open(cfg Config) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schemaScript, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// RecordRun writes a run result and its per-job rows in a single
// transaction, returning the assigned run ID.
func (s *Store) RecordRun(ctx context.Context, result *schema.RunResult) (runID int64, err error) {
	if err := result.Validate(); err != nil {
		return 0, fmt.Errorf("history: %w", err)
	}
	blob, err := codec.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("history: encoding run result: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("history: begin transaction: %w", err)
	}
	defer endTx(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO runs (pipeline, event_kind, ref, commit_sha, tag,
			publish, conclusion, started_at, completed_at, duration_ms, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				result.Pipeline,
				string(result.Event.Kind),
				result.Event.Ref,
				result.Event.Commit,
				result.Tag,
				boolToInt(result.Publish),
				result.Conclusion,
				result.StartedAt,
				result.CompletedAt,
				result.DurationMS,
				blob,
			},
		})
	if err != nil {
		return 0, fmt.Errorf("history: inserting run: %w", err)
	}
	runID = conn.LastInsertRowID()

	for i := range result.Jobs {
		job := &result.Jobs[i]
		err = sqlitex.Execute(conn, `
			INSERT INTO run_jobs (run_id, job, variant, outcome,
				duration_ms, cache_hit, failed_step)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					runID,
					job.Job,
					job.Variant,
					string(job.Outcome),
					job.DurationMS,
					boolToInt(job.CacheHit),
					job.FailedStep,
				},
			})
		if err != nil {
			return 0, fmt.Errorf("history: inserting job %s: %w", job.InstanceName(), err)
		}
	}

	return runID, nil
}

// RunSummary is one row of a history listing: the indexed columns of
// a run plus job counts, without the full result blob.
type RunSummary struct {
	ID         int64  `json:"id"`
	Pipeline   string `json:"pipeline"`
	EventKind  string `json:"event_kind"`
	Ref        string `json:"ref"`
	Commit     string `json:"commit"`
	Tag        string `json:"tag,omitempty"`
	Publish    bool   `json:"publish"`
	Conclusion string `json:"conclusion"`
	StartedAt  string `json:"started_at,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	JobsTotal  int    `json:"jobs_total"`
	JobsFailed int    `json:"jobs_failed"`
}

// ListFilter narrows a history listing. Zero values mean "no filter";
// a zero Limit defaults to 20.
type ListFilter struct {
	Pipeline   string
	Conclusion string
	Limit      int
}

// ListRuns returns run summaries, most recent first.
func (s *Store) ListRuns(ctx context.Context, filter ListFilter) ([]RunSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	// The filter columns are both indexed; the OR-with-empty pattern
	// keeps one cached statement for all filter combinations.
	var summaries []RunSummary
	err = sqlitex.Execute(conn, `
		SELECT r.id, r.pipeline, r.event_kind, r.ref, r.commit_sha,
			r.tag, r.publish, r.conclusion, r.started_at, r.duration_ms,
			(SELECT COUNT(*) FROM run_jobs j WHERE j.run_id = r.id),
			(SELECT COUNT(*) FROM run_jobs j WHERE j.run_id = r.id AND j.outcome = 'failed')
		FROM runs r
		WHERE (? = '' OR r.pipeline = ?)
		  AND (? = '' OR r.conclusion = ?)
		ORDER BY r.id DESC
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				filter.Pipeline, filter.Pipeline,
				filter.Conclusion, filter.Conclusion,
				limit,
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, RunSummary{
					ID:         stmt.ColumnInt64(0),
					Pipeline:   stmt.ColumnText(1),
					EventKind:  stmt.ColumnText(2),
					Ref:        stmt.ColumnText(3),
					Commit:     stmt.ColumnText(4),
					Tag:        stmt.ColumnText(5),
					Publish:    stmt.ColumnInt(6) != 0,
					Conclusion: stmt.ColumnText(7),
					StartedAt:  stmt.ColumnText(8),
					DurationMS: stmt.ColumnInt64(9),
					JobsTotal:  stmt.ColumnInt(10),
					JobsFailed: stmt.ColumnInt(11),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: listing runs: %w", err)
	}
	return summaries, nil
}

// GetRun retrieves the full run result for a run ID.
func (s *Store) GetRun(ctx context.Context, runID int64) (*schema.RunResult, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var blob []byte
	err = sqlitex.Execute(conn, `SELECT result FROM runs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: reading run %d: %w", runID, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("history: run %d not found", runID)
	}

	var result schema.RunResult
	if err := codec.Unmarshal(blob, &result); err != nil {
		return nil, fmt.Errorf("history: decoding run %d: %w", runID, err)
	}
	return &result, nil
}

// Prune deletes all but the most recent keep runs (and their job
// rows), returning the number of runs deleted.
func (s *Store) Prune(ctx context.Context, keep int) (deleted int64, err error) {
	if keep < 0 {
		keep = 0
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("history: begin transaction: %w", err)
	}
	defer endTx(&err)

	err = sqlitex.Execute(conn, `
		DELETE FROM run_jobs WHERE run_id IN (
			SELECT id FROM runs ORDER BY id DESC LIMIT -1 OFFSET ?
		)`,
		&sqlitex.ExecOptions{Args: []any{keep}})
	if err != nil {
		return 0, fmt.Errorf("history: pruning job rows: %w", err)
	}

	err = sqlitex.Execute(conn, `
		DELETE FROM runs WHERE id IN (
			SELECT id FROM runs ORDER BY id DESC LIMIT -1 OFFSET ?
		)`,
		&sqlitex.ExecOptions{Args: []any{keep}})
	if err != nil {
		return 0, fmt.Errorf("history: pruning runs: %w", err)
	}
	return int64(conn.Changes()), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
