package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store records refresh history in SQLite. It is an audit trail of refresh
// activity, not an indicator index: the indicator data itself lives in the
// JSON file store.
type Store struct {
	db *sql.DB
}

// Run is one completed refresh round.
type Run struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	DurationMS     int64      `json:"duration_ms"`
	FeedCount      int        `json:"feed_count"`
	IndicatorCount int        `json:"indicator_count"`
	ErrorCount     int        `json:"error_count"`
	Errors         []RunError `json:"errors,omitempty"`
}

// RunError is one failed feed within a run.
type RunError struct {
	FeedName string `json:"feed_name"`
	Message  string `json:"message"`
}

// NewStore opens (and if needed creates) the history database.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate performs database migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS refresh_runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			feed_count INTEGER NOT NULL,
			indicator_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS refresh_errors (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			feed_name TEXT NOT NULL,
			message TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES refresh_runs(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON refresh_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_run_id ON refresh_errors(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// RecordRun persists one refresh round and its per-feed errors. A missing
// run id is filled in.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_runs (id, started_at, duration_ms, feed_count, indicator_count, error_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.DurationMS, run.FeedCount, run.IndicatorCount, len(run.Errors))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, runErr := range run.Errors {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO refresh_errors (id, run_id, feed_name, message) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), run.ID, runErr.FeedName, runErr.Message)
		if err != nil {
			return "", fmt.Errorf("failed to insert run error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs, newest first, with their errors.
// limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, started_at, duration_ms, feed_count, indicator_count, error_count
	          FROM refresh_runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt int64
		if err := rows.Scan(&run.ID, &startedAt, &run.DurationMS,
			&run.FeedCount, &run.IndicatorCount, &run.ErrorCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range runs {
		errs, err := s.runErrors(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Errors = errs
	}
	return runs, nil
}

// runErrors loads the per-feed errors for one run.
func (s *Store) runErrors(ctx context.Context, runID string) ([]RunError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feed_name, message FROM refresh_errors WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run errors: %w", err)
	}
	defer rows.Close()

	var errs []RunError
	for rows.Next() {
		var re RunError
		if err := rows.Scan(&re.FeedName, &re.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run error: %w", err)
		}
		errs = append(errs, re)
	}
	return errs, rows.Err()
}
