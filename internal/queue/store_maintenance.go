package queue

import (
	"context"
	"fmt"
)

// Stats returns a count of the run's items grouped by status.
func (s *Store) Stats(ctx context.Context, runID string) (map[Status]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM work_items WHERE run_id = ? GROUP BY status`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// FailureStats returns counts of the run's failed items grouped by failure
// reason.
func (s *Store) FailureStats(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT COALESCE(failure_reason, 'internal'), COUNT(1)
         FROM work_items WHERE run_id = ? AND status = ? GROUP BY failure_reason`,
		runID,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failure stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		stats[reason] = count
	}
	return stats, rows.Err()
}

// Health aggregates the run's item state for diagnostic output.
func (s *Store) Health(ctx context.Context, runID string) (HealthSummary, error) {
	stats, err := s.Stats(ctx, runID)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch {
		case status == StatusPending:
			health.Pending += count
		case status == StatusFailed:
			health.Failed += count
		case status == StatusCompleted:
			health.Completed += count
		case status == StatusTemporalPending:
			health.Waiting += count
		case IsProcessingStatus(status):
			health.Processing += count
		}
	}
	return health, nil
}
