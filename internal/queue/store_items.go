package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bibtag/internal/imagefile"
)

// InsertItem enqueues one source file as a pending work item. Enqueueing a
// path already present in the run is a no-op and returns the existing item.
func (s *Store) InsertItem(ctx context.Context, runID, sourcePath string, kind imagefile.Kind) (*Item, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR IGNORE INTO work_items (run_id, source_path, file_kind, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID,
		sourcePath,
		string(kind),
		StatusPending,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return s.GetBySourcePath(ctx, runID, sourcePath)
}

// GetByID fetches a work item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetBySourcePath fetches the item for a source path within a run.
func (s *Store) GetBySourcePath(ctx context.Context, runID, sourcePath string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE run_id = ? AND source_path = ?`,
		runID,
		sourcePath,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by path: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing work item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE work_items
         SET file_kind = ?, status = ?, failure_reason = ?, error_message = ?,
             capture_time = ?, source_hash = ?, preview_path = ?,
             candidate_json = ?, corrected_json = ?, match_json = ?, commit_json = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             retry_count = ?, updated_at = ?, last_heartbeat = ?,
             needs_review = ?, review_reason = ?
         WHERE id = ?`,
		nullableString(string(item.FileKind)),
		item.Status,
		nullableString(item.FailureReason),
		nullableString(item.ErrorMessage),
		nullableTime(item.CaptureTime),
		nullableString(item.SourceHash),
		nullableString(item.PreviewPath),
		nullableString(item.CandidateJSON),
		nullableString(item.CorrectedJSON),
		nullableString(item.MatchJSON),
		nullableString(item.CommitJSON),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		item.RetryCount,
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.LastHeartbeat),
		boolToInt(item.NeedsReview),
		nullableString(item.ReviewReason),
		item.ID,
	); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Claim atomically moves the oldest item in fromStatus to toStatus and
// returns it, or nil when nothing is claimable. Concurrent workers calling
// Claim never receive the same item.
func (s *Store) Claim(ctx context.Context, runID string, fromStatus, toStatus Status) (*Item, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE work_items
        SET status = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM work_items
            WHERE run_id = ? AND status = ?
            ORDER BY created_at, id LIMIT 1
        )
        RETURNING ` + itemColumns

	var item *Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, toStatus, now, now, runID, fromStatus)
		claimed, scanErr := scanItem(row)
		if scanErr != nil {
			return scanErr
		}
		item = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	return item, nil
}

// ClaimWaiting moves the oldest temporal-wait item whose last update is older
// than cutoff into toStatus. Used to re-poll wait-state items without
// busy-looping over ones touched moments ago.
func (s *Store) ClaimWaiting(ctx context.Context, runID string, cutoff time.Time, toStatus Status) (*Item, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE work_items
        SET status = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM work_items
            WHERE run_id = ? AND status = ? AND updated_at < ?
            ORDER BY created_at, id LIMIT 1
        )
        RETURNING ` + itemColumns

	var item *Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, toStatus, now, now, runID, StatusTemporalPending, cutoff.UTC().Format(time.RFC3339Nano))
		claimed, scanErr := scanItem(row)
		if scanErr != nil {
			return scanErr
		}
		item = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim waiting item: %w", err)
	}
	return item, nil
}

// List returns the run's items filtered by status set (or all items when no
// status is provided).
func (s *Store) List(ctx context.Context, runID string, statuses ...Status) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM work_items WHERE run_id = ?`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause, runID)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, 0, len(statuses)+1)
		args = append(args, runID)
		for _, status := range statuses {
			args = append(args, status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` AND status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ReviewItems returns the run's items flagged for manual review.
func (s *Store) ReviewItems(ctx context.Context, runID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE run_id = ? AND needs_review = 1 ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query review items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// CompletedSourcePaths returns the source paths of the run's completed items.
// Resume uses this to report exactly which files were skipped.
func (s *Store) CompletedSourcePaths(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source_path FROM work_items WHERE run_id = ? AND status = ? ORDER BY created_at, id`,
		runID,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
