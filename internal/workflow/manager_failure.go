package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, pool *stagePool, stageLogger *slog.Logger, item *queue.Item, stageErr error) {
	reason := services.FailureReason(stageErr)
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = pool.name + " failed without error detail"
	}
	item.SetFailed(reason, message)

	attrs := []logging.Attr{
		logging.String("failure_reason", reason),
		logging.String("error_message", message),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	// An integrity breach means a raw source changed under us. That is a
	// correctness violation, never a routine failure.
	if errors.Is(stageErr, services.ErrIntegrity) {
		attrs = append(attrs, logging.Bool("alert", true))
	}
	stageLogger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			stageLogger.Debug("shutting down, could not persist stage failure")
		} else {
			stageLogger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastError(stageErr)
	m.setLastItem(item)
}
