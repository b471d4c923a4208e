// Package matching implements the pipeline stage that reconciles a corrected
// recognition candidate against the participant roster.
package matching

import (
	"context"
	"fmt"
	"log/slog"

	"bibtag/internal/config"
	"bibtag/internal/ident"
	"bibtag/internal/logging"
	"bibtag/internal/match"
	"bibtag/internal/queue"
	"bibtag/internal/roster"
	"bibtag/internal/services"
	"bibtag/internal/stage"
)

// Matcher drives roster reconciliation for each item.
type Matcher struct {
	roster  *roster.Roster
	matcher *match.Matcher
	logger  *slog.Logger
}

// NewMatcher constructs the matching stage handler.
func NewMatcher(cfg *config.Config, r *roster.Roster, logger *slog.Logger) *Matcher {
	return &Matcher{
		roster: r,
		matcher: match.New(match.Config{
			AcceptFloor:     cfg.Matcher.AcceptFloor,
			ScoreEpsilon:    cfg.Matcher.ScoreEpsilon,
			MaxEditDistance: cfg.Matcher.MaxEditDistance,
			NumberWeight:    cfg.Matcher.NumberWeight,
			TokenWeight:     cfg.Matcher.TokenWeight,
			CategoryPenalty: cfg.Matcher.CategoryPenalty,
		}),
		logger: logging.NewComponentLogger(logger, "matching"),
	}
}

func (m *Matcher) Prepare(ctx context.Context, item *queue.Item) error {
	if _, err := stage.ParseCorrection(item.CorrectedJSON); err != nil {
		return err
	}
	item.SetProgress("matching", "reconciling against roster", 0)
	return nil
}

func (m *Matcher) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, m.logger)

	correction, err := stage.ParseCorrection(item.CorrectedJSON)
	if err != nil {
		return err
	}
	candidate, err := stage.ParseCandidate(item.CandidateJSON)
	if err != nil {
		return err
	}

	record := ident.MatchRecord{Number: correction.Number}
	switch {
	case correction.Number == "":
		// No readable number is a valid terminal outcome, not a failure.
		record.Source = "unmatched"
		record.Rationale = "no race number recognized"
	default:
		result := m.matcher.Match(m.roster, match.Guess{
			Number:     correction.Number,
			Tokens:     candidate.Tokens,
			Confidence: correction.Confidence,
			Category:   candidate.Category,
		}, candidate.Category)

		record = buildRecord(correction, result)
		if record.Ambiguous {
			item.NeedsReview = true
			item.ReviewReason = record.Rationale
		}
	}

	encoded, err := ident.Encode(record)
	if err != nil {
		return services.Wrap(services.ErrValidation, "matching", "encode match record", "", err)
	}
	item.MatchJSON = encoded
	item.SetProgress("matching", record.Source, 100)
	logger.Info("match resolved",
		logging.String("number", record.Number),
		logging.String("name", record.Name),
		logging.String("source", record.Source),
		logging.Float64("score", record.Score),
		logging.Bool("ambiguous", record.Ambiguous))
	return nil
}

func buildRecord(correction ident.Correction, result match.Result) ident.MatchRecord {
	source := "fuzzy"
	if correction.Revised {
		source = "temporal"
	}

	if result.Best == nil {
		return ident.MatchRecord{
			Number:    correction.Number,
			Score:     topScore(result),
			Source:    "unmatched",
			Rationale: result.Rationale,
		}
	}

	record := ident.MatchRecord{
		Number:    result.Best.Number,
		Name:      result.Best.Name,
		Category:  result.Best.Category,
		Team:      result.Best.Team,
		Score:     topScore(result),
		Source:    source,
		Rationale: result.Rationale,
	}
	if record.Score >= 1.0 && !correction.Revised {
		record.Source = "exact"
	}
	if result.MultipleHighScores {
		record.Ambiguous = true
		record.Rationale = fmt.Sprintf("multiple equally strong roster matches for %q", correction.Number)
	}
	return record
}

func topScore(result match.Result) float64 {
	if len(result.Ranked) == 0 {
		return 0
	}
	return result.Ranked[0].Score
}

func (m *Matcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "matching"
	if m.roster == nil || m.roster.Len() == 0 {
		return stage.Unhealthy(name, "roster is empty or not loaded")
	}
	return stage.Healthy(name)
}
