// Package stage defines the contract the workflow manager needs from each
// pipeline stage.
package stage

import (
	"context"

	"bibtag/internal/queue"
)

// Handler describes one pipeline stage. Prepare validates preconditions and
// may mutate the item before Execute does the work; HealthCheck reports
// whether the stage's external dependencies are usable.
//
// One handler value serves every worker in its pool, so implementations must
// be safe for concurrent calls. Per-item context (run, item, stage, request
// identifiers) travels in the Context; handlers attach it to their logs via
// logging.WithContext rather than holding per-item state.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}
