package workflow

import (
	"context"
	"errors"
	"time"

	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running        bool
	RunID          string
	LastError      string
	LastItem       *queue.Item
	QueueStats     map[queue.Status]int
	StageHealth    map[string]stage.Health
	IntakePaused   bool
	IntakePauseWhy string
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	runID := m.runID
	lastErr := m.lastErr
	lastItem := m.lastItem
	pools := m.pools
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx, runID)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(pools))
	for _, pool := range pools {
		if pool.handler == nil {
			continue
		}
		health[pool.name] = pool.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		RunID:       runID,
		QueueStats:  stats,
		StageHealth: health,
	}
	if pauseErr := m.resources.Err(); pauseErr != nil {
		summary.IntakePaused = true
		summary.IntakePauseWhy = pauseErr.Error()
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastItem != nil {
		copied := *lastItem
		summary.LastItem = &copied
	}
	return summary
}

// ProgressSnapshot is one point in the poll-safe progress sequence.
type ProgressSnapshot struct {
	Taken      time.Time
	Elapsed    time.Duration
	Counts     map[queue.Status]int
	Completed  int
	Failed     int
	Total      int
	Throughput float64 // completed items per minute
}

// Progress reports the most recently refreshed per-status counts. Safe to
// poll concurrently with processing.
func (m *Manager) Progress() ProgressSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[queue.Status]int, len(m.counters))
	total := 0
	for status, n := range m.counters {
		counts[status] = n
		total += n
	}
	elapsed := time.Duration(0)
	if !m.started.IsZero() {
		elapsed = time.Since(m.started)
	}
	snapshot := ProgressSnapshot{
		Taken:     time.Now(),
		Elapsed:   elapsed,
		Counts:    counts,
		Completed: counts[queue.StatusCompleted],
		Failed:    counts[queue.StatusFailed],
		Total:     total,
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		snapshot.Throughput = float64(snapshot.Completed) / minutes
	}
	return snapshot
}

// runCompletionLoop refreshes the derived run counters on a bounded interval
// and finishes the run once ingest is done and every item is terminal.
func (m *Manager) runCompletionLoop(ctx context.Context) {
	defer m.auxWG.Done()
	ticker := time.NewTicker(secondsOrDefault(m.cfg.Workflow.CounterRefreshInterval, 5))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, err := m.refreshCounters(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				m.logger.Warn("failed to refresh run counters", logging.Error(err))
				continue
			}
			if done {
				return
			}
		}
	}
}

func (m *Manager) refreshCounters(ctx context.Context) (bool, error) {
	stats, err := m.store.Stats(ctx, m.runID)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.counters = stats
	ingestEnd := m.ingestEnd
	indexDone := m.indexDone
	m.mu.Unlock()

	// While items remain upstream of recognition, a burst's neighbors may
	// still be in flight and clusters must stay open for them. Once ingest
	// has ended and upstream is empty, no more observations can arrive at
	// all and open clusters become resolvable.
	upstream := stats[queue.StatusPending] + stats[queue.StatusDecoding] +
		stats[queue.StatusDecoded] + stats[queue.StatusRecognizing]
	if m.index != nil {
		m.index.SetUpstreamIdle(upstream == 0)
	}
	if ingestEnd && upstream == 0 && !indexDone && m.index != nil {
		m.index.MarkIngestComplete()
		m.mu.Lock()
		m.indexDone = true
		m.mu.Unlock()
	}

	active := 0
	for status, n := range stats {
		if status == queue.StatusCompleted || status == queue.StatusFailed {
			continue
		}
		active += n
	}
	if !ingestEnd || active > 0 {
		return false, nil
	}

	if err := m.store.SetRunStatus(ctx, m.runID, queue.RunCompleted); err != nil {
		return false, err
	}
	m.logger.Info("run completed",
		logging.String(logging.FieldRunID, m.runID),
		logging.Int("completed", stats[queue.StatusCompleted]),
		logging.Int("failed", stats[queue.StatusFailed]),
		logging.String(logging.FieldEventType, "run_complete"))
	m.markDrained()
	return true, nil
}
