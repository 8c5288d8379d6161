// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger keeps a local history of consistency check runs: the
// violations each run reported and the status counts it computed.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Count scopes in snapshot_counts.
const (
	scopeCurrently = "currently"
	scopeOverall   = "overall"
	scopeExclusion = "exclusion"
	scopeStats     = "stats"
)

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	statCurated        = "curated_records"
	statAtomic         = "atomic_steps"
	statCompletedSteps = "completed_atomic_steps"
)

// Store manages the ledger SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one recorded check.
type Run struct {
	ID           string    `json:"id" yaml:"id"`
	Commit       string    `json:"commit" yaml:"commit"`
	Mode         string    `json:"mode" yaml:"mode"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	Passed       bool      `json:"passed" yaml:"passed"`
	Completeness bool      `json:"completeness" yaml:"completeness"`
	Violations   int       `json:"violations" yaml:"violations"`
}

// RunInput is what the gate hands over after a check.
type RunInput struct {
	Commit     string
	Mode       string
	StartedAt  time.Time
	Passed     bool
	Violations []types.Violation
	Snapshot   types.StatusSnapshot
}

// Open opens or creates the ledger database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			commit_ref TEXT,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			passed INTEGER NOT NULL,
			completeness INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS violations (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			record_ids TEXT,
			detail TEXT NOT NULL,
			notifications TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_counts (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (run_id, scope, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_run_id ON violations(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordRun stores a run with its violations and snapshot counts in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, in RunInput) (Run, error) {
	run := Run{
		ID:           uuid.NewString(),
		Commit:       in.Commit,
		Mode:         in.Mode,
		StartedAt:    in.StartedAt.UTC(),
		Passed:       in.Passed,
		Completeness: in.Snapshot.CompletenessCondition,
		Violations:   len(in.Violations),
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, commit_ref, mode, started_at, passed, completeness)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Commit, run.Mode, run.StartedAt.Format(timeLayout),
		run.Passed, run.Completeness,
	)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	vstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO violations (run_id, kind, severity, record_ids, detail, notifications)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing violation insert: %w", err)
	}
	defer vstmt.Close()

	for _, v := range in.Violations {
		idsJSON, _ := json.Marshal(v.RecordIDs)
		notesJSON, _ := json.Marshal(v.Notifications)
		if _, err := vstmt.ExecContext(ctx,
			run.ID, string(v.Kind), string(v.Severity), string(idsJSON), v.Detail, string(notesJSON),
		); err != nil {
			return Run{}, fmt.Errorf("inserting violation: %w", err)
		}
	}

	cstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_counts (run_id, scope, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing count insert: %w", err)
	}
	defer cstmt.Close()

	scopes := map[string]map[string]int{
		scopeCurrently: in.Snapshot.Currently,
		scopeOverall:   in.Snapshot.Overall,
		scopeExclusion: in.Snapshot.Exclusion,
		scopeStats: {
			statCurated:        in.Snapshot.CuratedRecords,
			statAtomic:         in.Snapshot.AtomicSteps,
			statCompletedSteps: in.Snapshot.CompletedAtomicSteps,
		},
	}
	for scope, counts := range scopes {
		for key, value := range counts {
			if _, err := cstmt.ExecContext(ctx, run.ID, scope, key, value); err != nil {
				return Run{}, fmt.Errorf("inserting %s count %s: %w", scope, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

// Runs returns the most recent runs, newest first. A limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT r.id, r.commit_ref, r.mode, r.started_at, r.passed, r.completeness,
			(SELECT count(*) FROM violations v WHERE v.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var commit sql.NullString
		var started string
		if err := rows.Scan(&r.ID, &commit, &r.Mode, &started, &r.Passed, &r.Completeness, &r.Violations); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Commit = commit.String
		r.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parsing start time of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Violations returns the violations recorded for a run in report order.
func (s *Store) Violations(ctx context.Context, runID string) ([]types.Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, severity, record_ids, detail, notifications
		 FROM violations WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying violations: %w", err)
	}
	defer rows.Close()

	var out []types.Violation
	for rows.Next() {
		var v types.Violation
		var kind, severity, idsJSON, notesJSON string
		if err := rows.Scan(&kind, &severity, &idsJSON, &v.Detail, &notesJSON); err != nil {
			return nil, fmt.Errorf("scanning violation: %w", err)
		}
		v.Kind = types.ViolationKind(kind)
		v.Severity = types.Severity(severity)
		_ = json.Unmarshal([]byte(idsJSON), &v.RecordIDs)
		_ = json.Unmarshal([]byte(notesJSON), &v.Notifications)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Snapshot rebuilds the status snapshot recorded for a run.
func (s *Store) Snapshot(ctx context.Context, runID string) (types.StatusSnapshot, error) {
	snap := types.StatusSnapshot{
		Currently: make(map[string]int),
		Overall:   make(map[string]int),
		Exclusion: make(map[string]int),
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT completeness FROM runs WHERE id = ?`, runID,
	).Scan(&snap.CompletenessCondition); err != nil {
		return types.StatusSnapshot{}, fmt.Errorf("loading run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, key, value FROM snapshot_counts WHERE run_id = ?`, runID)
	if err != nil {
		return types.StatusSnapshot{}, fmt.Errorf("querying counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scope, key string
		var value int
		if err := rows.Scan(&scope, &key, &value); err != nil {
			return types.StatusSnapshot{}, fmt.Errorf("scanning count: %w", err)
		}
		switch scope {
		case scopeCurrently:
			snap.Currently[key] = value
		case scopeOverall:
			snap.Overall[key] = value
		case scopeExclusion:
			snap.Exclusion[key] = value
		case scopeStats:
			switch key {
			case statCurated:
				snap.CuratedRecords = value
			case statAtomic:
				snap.AtomicSteps = value
			case statCompletedSteps:
				snap.CompletedAtomicSteps = value
			}
		}
	}
	return snap, rows.Err()
}
