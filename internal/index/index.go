// Package index maintains an embedded DuckDB database of terminal runs and
// their iterations. The filesystem store stays the source of truth; the index
// exists for cross-run queries such as `otto list` and outcome statistics.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"otto/internal/run"
)

// schemaDDL holds the DuckDB schema definition.
//
//go:embed schema.sql
var schemaDDL string

// SchemaDDL returns the schema DDL used for initializing index databases.
func SchemaDDL() string {
	return schemaDDL
}

// Index is a handle on the run index database. Safe for concurrent use; the
// underlying sql.DB serializes access.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the index database at path. An empty
// path opens an in-memory database.
func Open(path string) (*Index, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("index dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// IndexRun upserts the run row and its iteration rows. Called by the engine
// on every terminal transition; re-indexing the same run is idempotent.
func (ix *Index) IndexRun(r run.Run, iterations []run.Iteration) error {
	if r.ID == "" {
		return errors.New("index: run id is empty")
	}
	ctx := context.Background()
	if _, err := ix.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, task, status, stop_reason, iterations, max_iters, workspace, last_output, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   status = excluded.status,
		   stop_reason = excluded.stop_reason,
		   iterations = excluded.iterations,
		   last_output = excluded.last_output,
		   updated_at = excluded.updated_at`,
		r.ID, r.Task, string(r.Status), string(r.StopReason), r.Iteration, r.MaxIters,
		r.Workspace, r.LastOutput, r.CreatedAt, r.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	for _, it := range iterations {
		failed := 0
		for _, result := range it.Results {
			if !result.OK {
				failed++
			}
		}
		if _, err := ix.db.ExecContext(ctx,
			`INSERT INTO iterations (run_id, iteration, ts, done, actions, failed_actions, output)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, iteration) DO NOTHING`,
			it.RunID, it.Index, it.Timestamp, it.Done, len(it.Results), failed, it.Output,
		); err != nil {
			return fmt.Errorf("insert iteration %d: %w", it.Index, err)
		}
	}
	return nil
}

// Summary is one row of the run listing.
type Summary struct {
	RunID      string
	Task       string
	Status     run.Status
	StopReason run.StopReason
	Iterations int
	MaxIters   int
}

// Summaries returns indexed runs newest first, at most limit rows. limit <= 0
// means no limit.
func (ix *Index) Summaries(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT run_id, task, status, stop_reason, iterations, max_iters
	          FROM runs ORDER BY created_at DESC, run_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var status, reason string
		if err := rows.Scan(&s.RunID, &s.Task, &status, &reason, &s.Iterations, &s.MaxIters); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.Status = run.Status(status)
		s.StopReason = run.StopReason(reason)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Outcome aggregates runs by terminal status and stop reason.
type Outcome struct {
	Status        run.Status
	StopReason    run.StopReason
	Runs          int
	AvgIterations float64
}

// Outcomes returns per-outcome aggregates from the v_run_outcomes view.
func (ix *Index) Outcomes(ctx context.Context) ([]Outcome, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT status, stop_reason, runs, avg_iterations FROM v_run_outcomes ORDER BY status, stop_reason`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var status, reason string
		if err := rows.Scan(&status, &reason, &o.Runs, &o.AvgIterations); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = run.Status(status)
		o.StopReason = run.StopReason(reason)
		out = append(out, o)
	}
	return out, rows.Err()
}
