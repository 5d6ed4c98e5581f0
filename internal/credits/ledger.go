// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package credits tracks per-project generation credits. Media
// generation reserves credits up front; a refused reservation surfaces
// before any provider call is made.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoCredits is returned when a reservation exceeds the project's
// balance.
var ErrNoCredits = errors.New("insufficient credits")

// Reserver gates paid operations on available credits.
type Reserver interface {
	// CheckAndReserve atomically deducts cost from the project's balance.
	// It returns false with a nil error when the balance is too low; the
	// caller decides whether that is fatal.
	CheckAndReserve(ctx context.Context, projectID string, cost int) (bool, error)
}

// Ledger is a SQLite-backed Reserver. It shares the run store's
// database handle.
type Ledger struct {
	db *sql.DB
}

// NewLedger prepares the credit tables on an open database.
func NewLedger(db *sql.DB) (*Ledger, error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS credit_balances (
			project_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS credit_entries (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			delta INTEGER NOT NULL,
			note TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_entries_project ON credit_entries(project_id)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("creating credit schema: %w", err)
		}
	}
	return &Ledger{db: db}, nil
}

// Balance returns the project's current balance. Unknown projects have
// a zero balance.
func (l *Ledger) Balance(ctx context.Context, projectID string) (int, error) {
	var balance int
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE project_id = ?`, projectID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance for %s: %w", projectID, err)
	}
	return balance, nil
}

// Grant adds credits to a project's balance.
func (l *Ledger) Grant(ctx context.Context, projectID string, amount int, note string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return l.apply(ctx, projectID, amount, note)
}

// CheckAndReserve implements Reserver. The deduction is transactional so
// concurrent reservations cannot overdraw the balance.
func (l *Ledger) CheckAndReserve(ctx context.Context, projectID string, cost int) (bool, error) {
	if cost <= 0 {
		return true, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning reservation: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE project_id = ?`, projectID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading balance for %s: %w", projectID, err)
	}
	if balance < cost {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE credit_balances SET balance = balance - ? WHERE project_id = ?`,
		cost, projectID,
	); err != nil {
		return false, fmt.Errorf("deducting credits for %s: %w", projectID, err)
	}
	if err := insertEntry(ctx, tx, projectID, -cost, "reservation"); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing reservation: %w", err)
	}
	return true, nil
}

// Refund returns previously reserved credits, for work that was paid
// for but discarded.
func (l *Ledger) Refund(ctx context.Context, projectID string, amount int, note string) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	return l.apply(ctx, projectID, amount, note)
}

func (l *Ledger) apply(ctx context.Context, projectID string, delta int, note string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning credit update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_balances (project_id, balance) VALUES (?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET balance = balance + excluded.balance`,
		projectID, delta,
	); err != nil {
		return fmt.Errorf("updating balance for %s: %w", projectID, err)
	}
	if err := insertEntry(ctx, tx, projectID, delta, note); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credit update: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, projectID string, delta int, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credit_entries (id, project_id, delta, note, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), projectID, delta, note,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording credit entry: %w", err)
	}
	return nil
}
