// Package correction implements the pipeline stage that applies temporal
// neighbor consensus to low-confidence recognition candidates. Items whose
// burst cluster is still growing are parked in the temporal wait state and
// re-claimed once the cluster settles or the max wait elapses.
package correction

import (
	"context"
	"log/slog"

	"bibtag/internal/ident"
	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/stage"
	"bibtag/internal/temporal"
)

// Corrector revises uncertain candidates using capture-time neighbors.
type Corrector struct {
	index  *temporal.Index
	logger *slog.Logger
}

// NewCorrector constructs the correction stage handler.
func NewCorrector(index *temporal.Index, logger *slog.Logger) *Corrector {
	return &Corrector{
		index:  index,
		logger: logging.NewComponentLogger(logger, "correction"),
	}
}

func (c *Corrector) Prepare(ctx context.Context, item *queue.Item) error {
	if _, err := stage.ParseCandidate(item.CandidateJSON); err != nil {
		return err
	}
	item.SetProgress("correcting", "checking temporal neighborhood", 0)
	return nil
}

func (c *Corrector) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, c.logger)

	candidate, err := stage.ParseCandidate(item.CandidateJSON)
	if err != nil {
		return err
	}

	// An empty candidate has nothing to correct and no vote to cast.
	if candidate.Empty() {
		return c.passThrough(item, candidate, "no race number recognized")
	}

	if c.index != nil && !c.index.Resolvable(item.ID) {
		// Earlier frames of this burst are still in flight. Park the item;
		// the workflow manager re-claims it once the window settles.
		item.Status = queue.StatusTemporalPending
		item.SetProgress("correcting", "waiting for temporal neighbors", 0)
		logger.Debug("cluster not yet resolvable",
			logging.Int64("cluster_size", int64(c.index.ClusterSize(item.ID))))
		return nil
	}

	if c.index == nil {
		return c.passThrough(item, candidate, "temporal index unavailable")
	}

	decision, observed := c.index.Correct(item.ID)
	correction := ident.Correction{
		Number:     candidate.Number,
		Confidence: candidate.Confidence,
	}
	if observed && decision.Revised {
		correction = ident.Correction{
			Number:     decision.Number,
			Confidence: decision.Consensus,
			Revised:    true,
			Original:   candidate.Number,
			Consensus:  decision.Consensus,
			Voters:     decision.Voters,
			Reason:     decision.Reason,
		}
		logger.Info("candidate revised by neighbor consensus",
			logging.String("original", candidate.Number),
			logging.String("revised", decision.Number),
			logging.Float64("consensus", decision.Consensus),
			logging.Int64("voters", int64(decision.Voters)))
	}

	encoded, err := ident.Encode(correction)
	if err != nil {
		return services.Wrap(services.ErrValidation, "correcting", "encode correction", "", err)
	}
	item.CorrectedJSON = encoded
	item.SetProgress("correcting", "correction resolved", 100)
	return nil
}

func (c *Corrector) passThrough(item *queue.Item, candidate ident.Candidate, reason string) error {
	encoded, err := ident.Encode(ident.Correction{
		Number:     candidate.Number,
		Confidence: candidate.Confidence,
		Reason:     reason,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, "correcting", "encode correction", "", err)
	}
	item.CorrectedJSON = encoded
	item.SetProgress("correcting", reason, 100)
	return nil
}

func (c *Corrector) HealthCheck(ctx context.Context) stage.Health {
	const name = "correction"
	if c.index == nil {
		return stage.Unhealthy(name, "temporal index not configured")
	}
	return stage.Healthy(name)
}
