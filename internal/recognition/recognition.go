// Package recognition implements the pipeline stage that submits a decoded
// preview to the external recognition service and records the resulting
// candidate, feeding the temporal index as results arrive.
package recognition

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"bibtag/internal/config"
	"bibtag/internal/ident"
	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/services/recognizer"
	"bibtag/internal/stage"
	"bibtag/internal/temporal"
)

// Client is the recognition service surface the stage depends on.
type Client interface {
	RecognizeFile(ctx context.Context, path string) (recognizer.Result, error)
	HealthCheck(ctx context.Context) error
}

// Recognizer drives the external recognition call for each item.
type Recognizer struct {
	client Client
	index  *temporal.Index
	logger *slog.Logger
}

// NewRecognizer constructs the recognition stage handler using default
// dependencies.
func NewRecognizer(cfg *config.Config, index *temporal.Index, logger *slog.Logger) *Recognizer {
	client := recognizer.NewClient(recognizer.Config{
		BaseURL:        cfg.Recognition.BaseURL,
		APIKey:         cfg.Recognition.APIKey,
		QualityPreset:  cfg.Recognition.QualityPreset,
		SportHint:      cfg.Recognition.SportHint,
		TimeoutSeconds: cfg.Recognition.TimeoutSeconds,
	}, recognizer.WithRetryMaxAttempts(cfg.Recognition.RetryAttempts))
	return NewRecognizerWithDependencies(client, index, logger)
}

// NewRecognizerWithDependencies allows injecting collaborators (used in tests).
func NewRecognizerWithDependencies(client Client, index *temporal.Index, logger *slog.Logger) *Recognizer {
	return &Recognizer{
		client: client,
		index:  index,
		logger: logging.NewComponentLogger(logger, "recognition"),
	}
}

func (r *Recognizer) Prepare(ctx context.Context, item *queue.Item) error {
	if strings.TrimSpace(item.PreviewPath) == "" {
		return services.Wrap(services.ErrValidation, "recognizing", "validate inputs",
			"no preview available; rerun decoding", nil)
	}
	if _, err := os.Stat(item.PreviewPath); err != nil {
		return services.Wrap(services.ErrUnreadable, "recognizing", "stat preview",
			"preview file missing or unreadable", err)
	}
	item.SetProgress("recognizing", "submitting preview", 0)
	return nil
}

func (r *Recognizer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)

	result, err := r.client.RecognizeFile(ctx, item.PreviewPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "recognizing", "recognize",
			"recognition service call failed", err)
	}

	candidate := ident.Candidate{}
	if best, ok := result.BestDetection(); ok {
		candidate = ident.Candidate{
			Number:     best.RaceNumber,
			Tokens:     best.Tokens,
			Category:   best.Category,
			Team:       best.Team,
			Confidence: best.Confidence,
		}
	}
	encoded, err := ident.Encode(candidate)
	if err != nil {
		return services.Wrap(services.ErrValidation, "recognizing", "encode candidate", "", err)
	}
	item.CandidateJSON = encoded

	// Photos without a capture timestamp sit outside temporal correction;
	// everything else joins its burst cluster here, keyed by capture order
	// rather than completion order.
	if r.index != nil && item.CaptureTime != nil && !candidate.Empty() {
		r.index.Observe(temporal.Observation{
			ItemID:      item.ID,
			CaptureTime: *item.CaptureTime,
			Number:      candidate.Number,
			Confidence:  candidate.Confidence,
		})
	}

	if candidate.Empty() {
		item.SetProgress("recognizing", "no readable race number", 100)
	} else {
		item.SetProgress("recognizing", "candidate "+candidate.Number, 100)
	}
	logger.Info("recognition complete",
		logging.String("number", candidate.Number),
		logging.Float64("confidence", candidate.Confidence),
		logging.Int64("detections", int64(len(result.Detections))))
	return nil
}

func (r *Recognizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "recognition"
	if r.client == nil {
		return stage.Unhealthy(name, "recognition client not configured")
	}
	if err := r.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
