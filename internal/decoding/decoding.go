// Package decoding implements the pipeline stage that classifies a source
// file, hashes raw originals, and produces the preview image recognition
// will consume.
package decoding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"bibtag/internal/config"
	"bibtag/internal/fileutil"
	"bibtag/internal/imagefile"
	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/services/exiftool"
	"bibtag/internal/services/rawpreview"
	"bibtag/internal/stage"
)

// Decoder prepares work items for recognition.
type Decoder struct {
	cfg     *config.Config
	preview *rawpreview.Service
	exif    *exiftool.Service
	logger  *slog.Logger
}

// NewDecoder constructs the decoding stage handler using default dependencies.
func NewDecoder(cfg *config.Config, logger *slog.Logger) *Decoder {
	return NewDecoderWithDependencies(cfg, logger,
		rawpreview.NewService(cfg.Preview.Binary),
		exiftool.NewService(cfg.Commit.ExiftoolBinary))
}

// NewDecoderWithDependencies allows injecting collaborators (used in tests).
func NewDecoderWithDependencies(cfg *config.Config, logger *slog.Logger, preview *rawpreview.Service, exif *exiftool.Service) *Decoder {
	return &Decoder{
		cfg:     cfg,
		preview: preview,
		exif:    exif,
		logger:  logging.NewComponentLogger(logger, "decoding"),
	}
}

func (d *Decoder) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, d.logger)

	kind, ok := imagefile.Classify(item.SourcePath)
	if !ok {
		return services.Wrap(services.ErrUnreadable, "decoding", "classify",
			fmt.Sprintf("unsupported image format: %s", item.SourcePath), nil)
	}
	item.FileKind = kind

	if _, err := os.Stat(item.SourcePath); err != nil {
		return services.Wrap(services.ErrUnreadable, "decoding", "stat source", "source file missing or unreadable", err)
	}

	item.SetProgress("decoding", "decoding preview", 0)
	logger.Info("decode starting",
		logging.String("source", item.SourcePath),
		logging.String("kind", string(kind)))
	return nil
}

func (d *Decoder) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, d.logger)

	if item.FileKind.IsRaw() {
		if err := d.decodeRaw(ctx, item); err != nil {
			return err
		}
	} else {
		// Rasters are recognized directly; no extraction needed.
		item.PreviewPath = item.SourcePath
	}

	if item.CaptureTime == nil {
		d.readCaptureTime(ctx, item, logger)
	}

	item.SetProgress("decoding", "preview ready", 100)
	logger.Info("decode complete",
		logging.String("preview", item.PreviewPath),
		logging.Bool("has_capture_time", item.CaptureTime != nil))
	return nil
}

func (d *Decoder) decodeRaw(ctx context.Context, item *queue.Item) error {
	// Hash before anything else touches the file. The commit stage verifies
	// against this value to enforce the raw-protection guarantee.
	hash, err := fileutil.HashFile(item.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrUnreadable, "decoding", "hash source", "hash raw source", err)
	}
	item.SourceHash = hash

	extractCtx := ctx
	if timeout := d.cfg.Preview.TimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}
	result, err := d.preview.Extract(extractCtx, item.SourcePath, d.cfg.Paths.PreviewDir)
	if err != nil {
		return services.Wrap(services.ErrUnreadable, "decoding", "extract preview", "extract embedded preview", err)
	}
	item.PreviewPath = result.PreviewPath
	if at, ok := result.CaptureTimestamp(); ok {
		capture := at.UTC()
		item.CaptureTime = &capture
	}
	return nil
}

// readCaptureTime is best effort: a photo without a capture timestamp still
// flows through the pipeline, it just sits outside temporal correction.
func (d *Decoder) readCaptureTime(ctx context.Context, item *queue.Item, logger *slog.Logger) {
	at, ok, err := d.exif.ReadCaptureTime(ctx, item.SourcePath)
	if err != nil {
		logger.Warn("capture time read failed", logging.Error(err))
		return
	}
	if !ok {
		logger.Debug("no capture timestamp in source", logging.String("source", item.SourcePath))
		return
	}
	capture := at.UTC()
	item.CaptureTime = &capture
}

func (d *Decoder) HealthCheck(ctx context.Context) stage.Health {
	const name = "decoding"
	if strings.TrimSpace(d.cfg.Paths.PreviewDir) == "" {
		return stage.Unhealthy(name, "preview directory not configured")
	}
	if err := d.preview.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	if err := d.exif.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
