package workflow

import (
	"context"
	"time"

	"bibtag/internal/queue"
)

// ReviewEntry is one photo whose identification needs a human decision.
type ReviewEntry struct {
	ItemID     int64
	SourcePath string
	Reason     string
}

// RunReport summarizes a run's terminal outcome: counts by state, failure
// reasons, and the manual-review list.
type RunReport struct {
	RunID      string
	Status     queue.RunStatus
	Started    time.Time
	Finished   *time.Time
	Elapsed    time.Duration
	Counts     map[queue.Status]int
	Failures   map[string]int
	Review     []ReviewEntry
	Throughput float64 // completed items per minute
}

// BuildReport assembles the report for a run from the store. Works both for
// a live manager and for the standalone report command.
func BuildReport(ctx context.Context, store *queue.Store, runID string) (RunReport, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	counts, err := store.Stats(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	failures, err := store.FailureStats(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	items, err := store.ReviewItems(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}

	report := RunReport{
		RunID:    run.ID,
		Status:   run.Status,
		Started:  run.CreatedAt,
		Finished: run.CompletedAt,
		Counts:   counts,
		Failures: failures,
	}
	end := time.Now()
	if run.CompletedAt != nil {
		end = *run.CompletedAt
	}
	report.Elapsed = end.Sub(run.CreatedAt)
	if minutes := report.Elapsed.Minutes(); minutes > 0 {
		report.Throughput = float64(counts[queue.StatusCompleted]) / minutes
	}
	for _, item := range items {
		report.Review = append(report.Review, ReviewEntry{
			ItemID:     item.ID,
			SourcePath: item.SourcePath,
			Reason:     item.ReviewReason,
		})
	}
	return report, nil
}

// Report builds the report for the manager's current run.
func (m *Manager) Report(ctx context.Context) (RunReport, error) {
	m.mu.RLock()
	runID := m.runID
	m.mu.RUnlock()
	return BuildReport(ctx, m.store, runID)
}
