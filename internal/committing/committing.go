// Package committing implements the final pipeline stage: writing the
// resolved identification into the photo's metadata through the commit
// layer's format-aware write discipline.
package committing

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"bibtag/internal/logging"
	"bibtag/internal/metadata"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/stage"
)

// Committer drives the metadata write for each item.
type Committer struct {
	commits *metadata.Committer
	logger  *slog.Logger
}

// NewCommitter constructs the committing stage handler.
func NewCommitter(commits *metadata.Committer, logger *slog.Logger) *Committer {
	return &Committer{
		commits: commits,
		logger:  logging.NewComponentLogger(logger, "committing"),
	}
}

func (c *Committer) Prepare(ctx context.Context, item *queue.Item) error {
	if _, err := stage.ParseMatchRecord(item.MatchJSON); err != nil {
		return err
	}
	item.SetProgress("committing", "writing metadata", 0)
	return nil
}

func (c *Committer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, c.logger)

	record, err := stage.ParseMatchRecord(item.MatchJSON)
	if err != nil {
		return err
	}

	// Unidentified photos have nothing to write; they complete untouched.
	if strings.TrimSpace(record.Number) == "" {
		item.SetProgress("committing", "no identification to write", 100)
		logger.Info("commit skipped", logging.String("source", item.SourcePath))
		return nil
	}

	result := metadata.FinalResult{
		RaceNumber:   record.Number,
		Name:         record.Name,
		Category:     record.Category,
		Team:         record.Team,
		Confidence:   record.Score,
		Source:       record.Source,
		ReviewReason: item.ReviewReason,
	}
	outcome, err := c.commits.Commit(ctx, item.SourcePath, item.FileKind, result, item.SourceHash)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(outcome)
	if err != nil {
		return services.Wrap(services.ErrValidation, "committing", "encode outcome", "", err)
	}
	item.CommitJSON = string(encoded)
	item.SetProgress("committing", "metadata committed", 100)
	logger.Info("commit complete",
		logging.String("strategy", string(outcome.Strategy)),
		logging.String("target", outcome.TargetPath))
	return nil
}

func (c *Committer) HealthCheck(ctx context.Context) stage.Health {
	const name = "committing"
	if c.commits == nil {
		return stage.Unhealthy(name, "commit layer not configured")
	}
	if err := c.commits.ToolCheck(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
