package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/stage"
)

func (m *Manager) runWorker(claimCtx context.Context, pool *stagePool, slot int) {
	defer m.wg.Done()
	logger := m.logger.With(
		logging.String(logging.FieldComponent, "workflow-"+pool.name),
		logging.Int("worker", slot),
	)

	for {
		select {
		case <-claimCtx.Done():
			return
		default:
		}

		if pool.gated && m.resources.Constrained() {
			m.waitForItemOrShutdown(claimCtx)
			continue
		}

		item, err := m.claimForPool(claimCtx, pool)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleClaimError(claimCtx, logger, err)
			continue
		}
		if item == nil {
			m.waitForItemOrShutdown(claimCtx)
			continue
		}

		m.processItem(pool, logger, item)
	}
}

// claimForPool pulls the next item for the pool's status edge. Correction
// additionally re-polls temporal-wait items that have sat long enough to be
// worth re-checking.
func (m *Manager) claimForPool(ctx context.Context, pool *stagePool) (*queue.Item, error) {
	item, err := m.store.Claim(ctx, m.runID, pool.start, pool.processing)
	if err != nil || item != nil {
		return item, err
	}
	if !pool.claimsWaiting {
		return nil, nil
	}
	cutoff := time.Now().Add(-m.waitCutoff)
	return m.store.ClaimWaiting(ctx, m.runID, cutoff, pool.processing)
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next queue item",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_claim_failed"))
	select {
	case <-ctx.Done():
	case <-time.After(secondsOrDefault(m.cfg.Workflow.ErrorRetryInterval, 5)):
	}
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// processItem runs one stage for one claimed item. Execution uses the
// manager's exec context, not the claim context, so a cooperative stop lets
// in-flight items finish their current stage and persist.
func (m *Manager) processItem(pool *stagePool, workerLogger *slog.Logger, item *queue.Item) {
	requestID := uuid.NewString()
	stageCtx := services.WithRunID(m.execCtx, item.RunID)
	stageCtx = services.WithItemID(stageCtx, item.ID)
	stageCtx = services.WithStage(stageCtx, pool.name)
	stageCtx = services.WithRequestID(stageCtx, requestID)
	stageLogger := logging.WithContext(stageCtx, workerLogger)

	m.setItemProcessingState(item, pool)
	if err := m.store.Update(stageCtx, item); err != nil {
		wrapped := fmt.Errorf("persist processing transition: %w", err)
		stageLogger.Error("failed to persist processing transition", logging.Error(wrapped))
		m.setLastError(wrapped)
		return
	}

	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_file", strings.TrimSpace(item.SourcePath)))

	if err := pool.handler.Prepare(stageCtx, item); err != nil {
		m.handleStageFailure(stageCtx, pool, stageLogger, item, err)
		return
	}
	if err := m.store.Update(stageCtx, item); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return
	}

	execErr := m.executeWithHeartbeat(stageCtx, pool.handler, item)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return
		}
		m.handleStageFailure(stageCtx, pool, stageLogger, item, execErr)
		return
	}

	// Handlers may park an item (temporal wait) by setting the status
	// themselves; only untouched items advance to the done status.
	if item.Status == pool.processing || item.Status == "" {
		item.Status = pool.done
	}
	item.LastHeartbeat = nil
	if item.Status == queue.StatusCompleted {
		if item.ProgressPercent < 100 {
			item.ProgressPercent = 100
		}
		if strings.TrimSpace(item.ProgressMessage) == "" {
			item.ProgressMessage = "completed"
		}
	}
	if err := m.store.Update(stageCtx, item); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.String("progress_message", strings.TrimSpace(item.ProgressMessage)),
		logging.Duration("stage_duration", time.Since(stageStart)))
	m.setLastItem(item)
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, item *queue.Item) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	execErr := handler.Execute(ctx, item)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) setItemProcessingState(item *queue.Item, pool *stagePool) {
	now := time.Now().UTC()
	item.Status = pool.processing
	if item.ProgressStage != pool.name {
		item.SetProgress(pool.name, pool.name+" started", 0)
	}
	item.ErrorMessage = ""
	item.FailureReason = ""
	item.LastHeartbeat = &now
}
