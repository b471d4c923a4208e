package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetInterrupted returns the run's in-flight items to the start of their
// current stage. Called once when a run is resumed; completed and failed
// items are untouched.
func (s *Store) ResetInterrupted(ctx context.Context, runID string) (int64, error) {
	args := make([]any, 0, len(stageRollbackTransitions)*2+2+len(stageRollbackTransitions))
	caseClause := ""
	for _, transition := range stageRollbackTransitions {
		caseClause += " WHEN ? THEN ?"
		args = append(args, transition.from, transition.to)
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), runID)
	inClause := makePlaceholders(len(stageRollbackTransitions))
	for _, transition := range stageRollbackTransitions {
		args = append(args, transition.from)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
         SET status = CASE status`+caseClause+` ELSE status END,
             progress_stage = 'reset on resume', progress_percent = 0,
             progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE run_id = ? AND status IN (`+inClause+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted items: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE work_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns in-flight items whose heartbeats expired to the start
// of their current stage, so work lost to a dead worker is picked up again.
func (s *Store) ReclaimStale(ctx context.Context, runID string, cutoff time.Time) (int64, error) {
	args := make([]any, 0, len(stageRollbackTransitions)*3+3)
	caseClause := ""
	for _, transition := range stageRollbackTransitions {
		caseClause += " WHEN ? THEN ?"
		args = append(args, transition.from, transition.to)
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), runID)
	inClause := makePlaceholders(len(stageRollbackTransitions))
	for _, transition := range stageRollbackTransitions {
		args = append(args, transition.from)
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
         SET status = CASE status`+caseClause+` ELSE status END,
             progress_stage = 'reclaimed after stale heartbeat', progress_percent = 0,
             progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE run_id = ? AND status IN (`+inClause+`)
           AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves the run's failed items back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, runID string, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE work_items
             SET status = ?, failure_reason = NULL, error_message = NULL,
                 progress_stage = 'retry requested', progress_percent = 0,
                 progress_message = NULL, retry_count = retry_count + 1, updated_at = ?
             WHERE run_id = ? AND status = ?`,
			StatusPending,
			now,
			runID,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+4)
	args = append(args, StatusPending, now, runID, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
         SET status = ?, failure_reason = NULL, error_message = NULL,
             progress_stage = 'retry requested', progress_percent = 0,
             progress_message = NULL, retry_count = retry_count + 1, updated_at = ?
         WHERE run_id = ? AND status = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
