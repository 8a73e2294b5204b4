// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord is the persisted state of a production run.
type RunRecord struct {
	RunID       string
	ShortName   string
	State       string
	Urgency     string
	StartedAt   time.Time
	FinishedAt  time.Time
	UpdatedAt   time.Time
	ControlAddr string
}

// WorkflowRecord is the persisted state of one workflow in a run.
type WorkflowRecord struct {
	RunID     string
	Workflow  string
	Sequence  int
	JobID     string
	State     string
	Error     string
	UpdatedAt time.Time
}

// Store records run and workflow state transitions in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the state database at path.
// ":memory:" keeps everything in process.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state database path is required")
	}

	connStr := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS production_runs (
		run_id TEXT PRIMARY KEY,
		short_name TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		urgency TEXT NOT NULL DEFAULT '',
		control_addr TEXT NOT NULL DEFAULT '',
		started_at DATETIME,
		finished_at DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS workflow_states (
		run_id TEXT NOT NULL,
		workflow TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 0,
		job_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, workflow)
	);

	CREATE INDEX IF NOT EXISTS idx_workflow_states_run ON workflow_states(run_id, sequence);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun creates or updates a run record. Empty fields keep their stored
// values, so callers only set what changed.
func (s *Store) SaveRun(ctx context.Context, r RunRecord) error {
	query := `
	INSERT INTO production_runs (run_id, short_name, state, urgency, control_addr, started_at, finished_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		short_name = COALESCE(NULLIF(excluded.short_name, ''), production_runs.short_name),
		state = excluded.state,
		urgency = COALESCE(NULLIF(excluded.urgency, ''), production_runs.urgency),
		control_addr = COALESCE(NULLIF(excluded.control_addr, ''), production_runs.control_addr),
		started_at = COALESCE(excluded.started_at, production_runs.started_at),
		finished_at = COALESCE(excluded.finished_at, production_runs.finished_at),
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.RunID, r.ShortName, r.State, r.Urgency, r.ControlAddr,
		nullTime(r.StartedAt), nullTime(r.FinishedAt), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	return nil
}

// SaveWorkflow creates or updates a workflow record. A workflow that reached
// done or failed keeps that state.
func (s *Store) SaveWorkflow(ctx context.Context, w WorkflowRecord) error {
	query := `
	INSERT INTO workflow_states (run_id, workflow, sequence, job_id, state, error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, workflow) DO UPDATE SET
		sequence = CASE WHEN excluded.sequence > 0 THEN excluded.sequence ELSE workflow_states.sequence END,
		job_id = COALESCE(NULLIF(excluded.job_id, ''), workflow_states.job_id),
		state = CASE WHEN workflow_states.state IN ('done', 'failed') THEN workflow_states.state ELSE excluded.state END,
		error = COALESCE(NULLIF(excluded.error, ''), workflow_states.error),
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		w.RunID, w.Workflow, w.Sequence, w.JobID, w.State, w.Error, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s/%s: %w", w.RunID, w.Workflow, err)
	}
	return nil
}

// Run returns the stored run, or nil if there is none.
func (s *Store) Run(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
	SELECT run_id, short_name, state, urgency, control_addr, started_at, finished_at, updated_at
	FROM production_runs WHERE run_id = ?
	`
	var r RunRecord
	var started, finished, updated sql.NullTime
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&r.RunID, &r.ShortName, &r.State, &r.Urgency, &r.ControlAddr, &started, &finished, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	r.StartedAt = started.Time
	r.FinishedAt = finished.Time
	r.UpdatedAt = updated.Time
	return &r, nil
}

// Runs returns up to limit runs, most recently updated first. A limit of
// zero or less returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
	SELECT run_id, short_name, state, urgency, control_addr, started_at, finished_at, updated_at
	FROM production_runs ORDER BY updated_at DESC, run_id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished, updated sql.NullTime
		if err := rows.Scan(&r.RunID, &r.ShortName, &r.State, &r.Urgency, &r.ControlAddr, &started, &finished, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = started.Time
		r.FinishedAt = finished.Time
		r.UpdatedAt = updated.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

// Workflows returns the run's workflow records in launch order.
func (s *Store) Workflows(ctx context.Context, runID string) ([]WorkflowRecord, error) {
	query := `
	SELECT run_id, workflow, sequence, job_id, state, error, updated_at
	FROM workflow_states WHERE run_id = ? ORDER BY sequence, workflow
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []WorkflowRecord
	for rows.Next() {
		var w WorkflowRecord
		var updated sql.NullTime
		if err := rows.Scan(&w.RunID, &w.Workflow, &w.Sequence, &w.JobID, &w.State, &w.Error, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		w.UpdatedAt = updated.Time
		out = append(out, w)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
