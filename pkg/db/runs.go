package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Run states.
const (
	RunRunning   = "running"
	RunFinished  = "finished"
	RunCancelled = "cancelled"
	RunAborted   = "aborted"
)

// Run is one pipeline invocation.
type Run struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   *time.Time
	InputPath    string
	OutputDir    string
	State        string
	Total        int
	Completed    int
	Failed       int
	Skipped      int
	BytesWritten int64
}

// StartRun records the beginning of a run.
func (db *DB) StartRun(r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO runs (run_id, started_at, input_path, output_dir, state, total_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.RunID, r.StartedAt.UTC(), r.InputPath, r.OutputDir, RunRunning, r.Total)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and state of a run.
func (db *DB) FinishRun(r Run) error {
	finished := time.Now().UTC()
	if r.FinishedAt != nil {
		finished = r.FinishedAt.UTC()
	}
	result, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, state = ?, total_count = ?, completed_count = ?,
		    failed_count = ?, skipped_count = ?, bytes_written = ?
		WHERE run_id = ?
	`, finished, r.State, r.Total, r.Completed, r.Failed, r.Skipped, r.BytesWritten, r.RunID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", r.RunID)
	}
	return nil
}

// GetRun retrieves a run by its ID
func (db *DB) GetRun(runID string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`
		SELECT run_id, started_at, finished_at, input_path, output_dir, state,
		       total_count, completed_count, failed_count, skipped_count, bytes_written
		FROM runs
		WHERE run_id = ?
	`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns retrieves runs ordered by most recent first
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT run_id, started_at, finished_at, input_path, output_dir, state,
		       total_count, completed_count, failed_count, skipped_count, bytes_written
		FROM runs
		ORDER BY started_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	if err := s.Scan(&r.RunID, &r.StartedAt, &finished, &r.InputPath, &r.OutputDir, &r.State,
		&r.Total, &r.Completed, &r.Failed, &r.Skipped, &r.BytesWritten); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
