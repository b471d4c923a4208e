package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"bibtag/internal/committing"
	"bibtag/internal/config"
	"bibtag/internal/correction"
	"bibtag/internal/decoding"
	"bibtag/internal/logging"
	"bibtag/internal/matching"
	"bibtag/internal/metadata"
	"bibtag/internal/queue"
	"bibtag/internal/recognition"
	"bibtag/internal/roster"
	"bibtag/internal/services/exiftool"
	"bibtag/internal/temporal"
	"bibtag/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore() (*config.Config, *queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open state database: %w", err)
	}
	return cfg, store, nil
}

func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, nil
}

// buildManager wires the full pipeline: stage handlers, the temporal index
// shared between recognition and correction, and the commit layer.
func buildManager(cfg *config.Config, store *queue.Store, participants *roster.Roster, logger *slog.Logger) (*workflow.Manager, error) {
	index := temporal.NewIndex(temporalConfig(cfg))
	commits, err := metadata.NewCommitter(cfg.Commit, exiftool.NewService(cfg.Commit.ExiftoolBinary), logger)
	if err != nil {
		return nil, err
	}

	manager := workflow.NewManager(cfg, store, index, logger)
	manager.ConfigureStages(workflow.StageSet{
		Decoder:    decoding.NewDecoder(cfg, logger),
		Recognizer: recognition.NewRecognizer(cfg, index, logger),
		Corrector:  correction.NewCorrector(index, logger),
		Matcher:    matching.NewMatcher(cfg, participants, logger),
		Committer:  committing.NewCommitter(commits, logger),
	})
	return manager, nil
}

func temporalConfig(cfg *config.Config) temporal.Config {
	return temporal.Config{
		ClusterGap:    time.Duration(cfg.Temporal.ClusterGapSeconds * float64(time.Second)),
		LowConfidence: cfg.Temporal.LowConfidence,
		NeighborFloor: cfg.Temporal.NeighborFloor,
		Supermajority: cfg.Temporal.SupermajorityFraction,
		MaxWait:       time.Duration(cfg.Temporal.MaxWaitSeconds) * time.Second,
	}
}

func loadRoster(cfg *config.Config) (*roster.Roster, []roster.Warning, error) {
	path := strings.TrimSpace(cfg.Roster.Path)
	if path == "" {
		return nil, nil, errors.New("no roster configured; set roster.path or pass --roster")
	}
	return roster.Load(path)
}

// acquireRunLock enforces one live run per state directory.
func acquireRunLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(cfg.Paths.StateDir, "bibtag.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another bibtag run is already active for this state directory")
	}
	return lock, nil
}
