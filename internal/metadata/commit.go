package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bibtag/internal/config"
	"bibtag/internal/fileutil"
	"bibtag/internal/imagefile"
	"bibtag/internal/logging"
	"bibtag/internal/services"
	"bibtag/internal/services/exiftool"
)

// Mode selects the write strategy.
type Mode string

const (
	// ModeEmbed writes into the image file itself. Raster only.
	ModeEmbed Mode = "embed"
	// ModeSidecar writes a separate XMP document next to the source.
	ModeSidecar Mode = "sidecar"
	// ModeAuto picks sidecar for raw sources and embed for rasters.
	ModeAuto Mode = "auto"
)

// ParseMode validates a configured mode string.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeEmbed:
		return ModeEmbed, nil
	case ModeSidecar:
		return ModeSidecar, nil
	case ModeAuto, "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown commit mode %q", value)
	}
}

// Strategy is the write path actually taken for one commit.
type Strategy string

const (
	StrategyEmbed   Strategy = "embed"
	StrategySidecar Strategy = "sidecar"
)

// Outcome reports what a commit wrote.
type Outcome struct {
	Strategy    Strategy
	TargetPath  string
	SourceHash  string
	KeywordsSet []string
}

// Committer writes final results into photo metadata.
type Committer struct {
	mode           Mode
	appendKeywords bool
	exif           *exiftool.Service
	logger         *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCommitter builds a Committer from configuration. The exiftool service
// may be shared with other components.
func NewCommitter(cfg config.Commit, exif *exiftool.Service, logger *slog.Logger) (*Committer, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "committing", "configure", err.Error(), nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Committer{
		mode:           mode,
		appendKeywords: !strings.EqualFold(cfg.KeywordPolicy, "overwrite"),
		exif:           exif,
		logger:         logger.With(logging.String(logging.FieldComponent, "metadata")),
		locks:          make(map[string]*sync.Mutex),
	}, nil
}

// ToolCheck reports whether the tooling the configured mode relies on is
// reachable. Sidecar-only commits need no external tool.
func (c *Committer) ToolCheck() error {
	if c.mode == ModeSidecar {
		return nil
	}
	if c.exif == nil {
		return fmt.Errorf("exiftool service not configured")
	}
	return c.exif.Available()
}

// Commit writes result into the file at sourcePath using the configured
// strategy. expectedHash, when non-empty, is the sha256 recorded for a raw
// source at decode time; the commit verifies the source still matches it
// before and after writing and fails with an integrity error otherwise.
// Commits against the same path are serialized.
func (c *Committer) Commit(ctx context.Context, sourcePath string, kind imagefile.Kind, result FinalResult, expectedHash string) (Outcome, error) {
	lock := c.pathLock(sourcePath)
	lock.Lock()
	defer lock.Unlock()

	strategy, err := c.resolveStrategy(kind)
	if err != nil {
		return Outcome{}, err
	}

	if kind.IsRaw() && expectedHash != "" {
		if err := c.verifySourceHash(sourcePath, expectedHash, "before"); err != nil {
			return Outcome{}, err
		}
	}

	var outcome Outcome
	switch strategy {
	case StrategySidecar:
		outcome, err = c.commitSidecar(sourcePath, result)
	case StrategyEmbed:
		outcome, err = c.commitEmbed(ctx, sourcePath, result)
	default:
		err = services.Wrap(services.ErrValidation, "committing", "commit", fmt.Sprintf("unhandled strategy %q", strategy), nil)
	}
	if err != nil {
		return Outcome{}, err
	}

	if kind.IsRaw() && expectedHash != "" {
		if err := c.verifySourceHash(sourcePath, expectedHash, "after"); err != nil {
			return Outcome{}, err
		}
		outcome.SourceHash = expectedHash
	}

	c.logger.Info("metadata committed",
		logging.String("source", sourcePath),
		logging.String("strategy", string(outcome.Strategy)),
		logging.String("target", outcome.TargetPath))
	return outcome, nil
}

func (c *Committer) resolveStrategy(kind imagefile.Kind) (Strategy, error) {
	switch c.mode {
	case ModeSidecar:
		return StrategySidecar, nil
	case ModeEmbed:
		if kind.IsRaw() {
			// Embedded writes against raw sources are a programming
			// contract violation. Fail closed, never downgrade.
			return "", services.Wrap(services.ErrValidation, "committing", "commit",
				fmt.Sprintf("embedded write refused for raw kind %q", kind), nil)
		}
		return StrategyEmbed, nil
	case ModeAuto:
		if kind.IsRaw() {
			return StrategySidecar, nil
		}
		return StrategyEmbed, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "committing", "commit",
			fmt.Sprintf("unknown commit mode %q", c.mode), nil)
	}
}

func (c *Committer) commitSidecar(sourcePath string, result FinalResult) (Outcome, error) {
	sidecarPath, err := writeSidecar(sourcePath, result, c.appendKeywords)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrUnreadable, "committing", "sidecar", "write sidecar", err)
	}
	return Outcome{
		Strategy:    StrategySidecar,
		TargetPath:  sidecarPath,
		KeywordsSet: result.Keywords(),
	}, nil
}

// commitEmbed writes into a temporary copy and renames it over the original,
// so a crashed or failed write never leaves a half-written image behind.
func (c *Committer) commitEmbed(ctx context.Context, sourcePath string, result FinalResult) (Outcome, error) {
	if c.exif == nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "committing", "embed", "exiftool service not configured", nil)
	}

	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)
	tempPath := filepath.Join(dir, "."+base+".bibtag-tmp")
	if err := fileutil.CopyFileVerified(sourcePath, tempPath); err != nil {
		return Outcome{}, services.Wrap(services.ErrUnreadable, "committing", "embed", "stage working copy", err)
	}
	defer os.Remove(tempPath)

	tags := exiftool.Tags{
		Keywords:     result.Keywords(),
		Instructions: result.Instructions(),
	}
	if err := c.exif.WriteTags(ctx, tempPath, tags, c.appendKeywords); err != nil {
		return Outcome{}, services.Wrap(services.ErrExternalTool, "committing", "embed", "write tags", err)
	}

	info, err := os.Stat(tempPath)
	if err != nil || info.Size() == 0 {
		return Outcome{}, services.Wrap(services.ErrIntegrity, "committing", "embed", "working copy missing or empty after write", err)
	}
	if err := os.Rename(tempPath, sourcePath); err != nil {
		return Outcome{}, services.Wrap(services.ErrUnreadable, "committing", "embed", "replace original", err)
	}
	return Outcome{
		Strategy:    StrategyEmbed,
		TargetPath:  sourcePath,
		KeywordsSet: tags.Keywords,
	}, nil
}

func (c *Committer) verifySourceHash(sourcePath, expectedHash, phase string) error {
	actual, err := fileutil.HashFile(sourcePath)
	if err != nil {
		return services.Wrap(services.ErrUnreadable, "committing", "verify", "hash source "+phase+" commit", err)
	}
	if !strings.EqualFold(actual, expectedHash) {
		c.logger.Error("raw source hash mismatch",
			logging.String("source", sourcePath),
			logging.String("phase", phase),
			logging.String("expected", expectedHash),
			logging.String("actual", actual))
		return services.Wrap(services.ErrIntegrity, "committing", "verify",
			fmt.Sprintf("raw source hash changed (%s commit)", phase), nil)
	}
	return nil
}

func (c *Committer) pathLock(path string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[path] = lock
	}
	return lock
}
