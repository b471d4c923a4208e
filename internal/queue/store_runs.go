package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound indicates a resume was requested for an unknown run.
var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts a new active run and returns it.
func (s *Store) CreateRun(ctx context.Context, configJSON string) (*Run, error) {
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO runs (id, status, config_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id,
		RunActive,
		nullableString(configJSON),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun fetches a run by identifier. Returns ErrRunNotFound for unknown IDs.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently created run, or ErrRunNotFound when the
// database holds none.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs ordered newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SetRunStatus transitions a run to the given status, stamping completed_at
// for terminal states.
func (s *Store) SetRunStatus(ctx context.Context, id string, status RunStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var completedAt any
	if status == RunCompleted || status == RunCancelled {
		completedAt = now
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		status,
		now,
		completedAt,
		id,
	); err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return nil
}
