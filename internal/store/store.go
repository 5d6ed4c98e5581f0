// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists pipeline runs in a SQLite database. One row per
// run; structured payloads (references, units, breakdowns) live in JSON
// columns beside the queryable fields.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

const dbFile = "storyboard.db"

// ErrNotFound is returned when no run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// Store manages the run database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the run database at dataDir/storyboard.db,
// creating the schema if it does not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so collaborators (the credit ledger)
// can share the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			doc_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			input TEXT NOT NULL,
			references_json TEXT,
			units_json TEXT,
			breakdowns_json TEXT,
			unit_statuses_json TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_project_id ON runs(project_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts a run. The whole record is replaced; runs are never
// patched column by column.
func (s *Store) Save(ctx context.Context, run *types.PipelineRun) error {
	refs, err := json.Marshal(run.References)
	if err != nil {
		return fmt.Errorf("encoding references: %w", err)
	}
	units, err := json.Marshal(run.Units)
	if err != nil {
		return fmt.Errorf("encoding units: %w", err)
	}
	breakdowns, err := json.Marshal(run.Breakdowns)
	if err != nil {
		return fmt.Errorf("encoding breakdowns: %w", err)
	}
	statuses, err := json.Marshal(run.UnitStatuses)
	if err != nil {
		return fmt.Errorf("encoding unit statuses: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project_id, doc_kind, status, error, input,
			references_json, units_json, breakdowns_json, unit_statuses_json,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			project_id=excluded.project_id, doc_kind=excluded.doc_kind,
			status=excluded.status, error=excluded.error, input=excluded.input,
			references_json=excluded.references_json, units_json=excluded.units_json,
			breakdowns_json=excluded.breakdowns_json,
			unit_statuses_json=excluded.unit_statuses_json,
			updated_at=excluded.updated_at`,
		run.ID, run.ProjectID, string(run.DocKind), string(run.Status), run.Error, run.Input,
		string(refs), string(units), string(breakdowns), string(statuses),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// Load returns the run with the given ID, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*types.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, doc_kind, status, error, input,
			references_json, units_json, breakdowns_json, unit_statuses_json,
			created_at, updated_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// Latest returns the most recently updated run for a project, or
// ErrNotFound when the project has none.
func (s *Store) Latest(ctx context.Context, projectID string) (*types.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, doc_kind, status, error, input,
			references_json, units_json, breakdowns_json, unit_statuses_json,
			created_at, updated_at
		 FROM runs WHERE project_id = ? ORDER BY updated_at DESC LIMIT 1`, projectID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return run, err
}

// RunSummary is one row of a run listing.
type RunSummary struct {
	ID        string          `json:"id" yaml:"id"`
	ProjectID string          `json:"project_id" yaml:"project_id"`
	Status    types.RunStatus `json:"status" yaml:"status"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
}

// List returns summaries of all runs, newest first, optionally filtered
// by project.
func (s *Store) List(ctx context.Context, projectID string) ([]RunSummary, error) {
	query := `SELECT id, project_id, status, updated_at FROM runs`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var status, updated string
		if err := rows.Scan(&r.ID, &r.ProjectID, &status, &updated); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Status = types.RunStatus(status)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes a run. Deleting an absent run is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	return nil
}

func scanRun(row *sql.Row) (*types.PipelineRun, error) {
	var run types.PipelineRun
	var docKind, status, created, updated string
	var errText, refs, units, breakdowns, statuses sql.NullString

	err := row.Scan(&run.ID, &run.ProjectID, &docKind, &status, &errText, &run.Input,
		&refs, &units, &breakdowns, &statuses, &created, &updated)
	if err != nil {
		return nil, err
	}

	run.DocKind = types.DocumentKind(docKind)
	run.Status = types.RunStatus(status)
	run.Error = errText.String
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	if refs.Valid && refs.String != "" && refs.String != "null" {
		run.References = types.NewReferenceSet()
		if err := json.Unmarshal([]byte(refs.String), run.References); err != nil {
			return nil, fmt.Errorf("decoding references for run %s: %w", run.ID, err)
		}
	}
	if units.Valid && units.String != "" {
		if err := json.Unmarshal([]byte(units.String), &run.Units); err != nil {
			return nil, fmt.Errorf("decoding units for run %s: %w", run.ID, err)
		}
	}
	if breakdowns.Valid && breakdowns.String != "" {
		if err := json.Unmarshal([]byte(breakdowns.String), &run.Breakdowns); err != nil {
			return nil, fmt.Errorf("decoding breakdowns for run %s: %w", run.ID, err)
		}
	}
	if statuses.Valid && statuses.String != "" {
		if err := json.Unmarshal([]byte(statuses.String), &run.UnitStatuses); err != nil {
			return nil, fmt.Errorf("decoding unit statuses for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}
