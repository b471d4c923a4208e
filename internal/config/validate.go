package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRecognition(); err != nil {
		return err
	}
	if err := c.validateMatcher(); err != nil {
		return err
	}
	if err := c.validateTemporal(); err != nil {
		return err
	}
	if err := c.validateCommit(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateRecognition() error {
	if strings.TrimSpace(c.Recognition.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/bibtag/config.toml"
		}
		return fmt.Errorf("recognition.base_url is required. Edit %s (create with 'bibtag config init')", defaultPath)
	}
	if c.Recognition.TimeoutSeconds <= 0 {
		return errors.New("recognition.timeout_seconds must be positive")
	}
	if c.Recognition.RetryAttempts < 1 {
		return errors.New("recognition.retry_attempts must be at least 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.Recognition.QualityPreset)) {
	case "fast", "balanced", "thorough":
	default:
		return fmt.Errorf("recognition.quality_preset must be fast, balanced, or thorough, got %q", c.Recognition.QualityPreset)
	}
	return nil
}

func (c *Config) validateMatcher() error {
	if c.Matcher.AcceptFloor < 0 || c.Matcher.AcceptFloor > 1 {
		return errors.New("matcher.accept_floor must be between 0 and 1")
	}
	if c.Matcher.ScoreEpsilon < 0 || c.Matcher.ScoreEpsilon > 1 {
		return errors.New("matcher.score_epsilon must be between 0 and 1")
	}
	if c.Matcher.MaxEditDistance < 0 {
		return errors.New("matcher.max_edit_distance must not be negative")
	}
	if c.Matcher.NumberWeight < 0 || c.Matcher.TokenWeight < 0 {
		return errors.New("matcher weights must not be negative")
	}
	if c.Matcher.NumberWeight+c.Matcher.TokenWeight == 0 {
		return errors.New("matcher weights must not both be zero")
	}
	if c.Matcher.CategoryPenalty < 0 || c.Matcher.CategoryPenalty > 1 {
		return errors.New("matcher.category_penalty must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateTemporal() error {
	if c.Temporal.ClusterGapSeconds <= 0 {
		return errors.New("temporal.cluster_gap_seconds must be positive")
	}
	if c.Temporal.LowConfidence < 0 || c.Temporal.LowConfidence > 1 {
		return errors.New("temporal.low_confidence must be between 0 and 1")
	}
	if c.Temporal.NeighborFloor < 0 || c.Temporal.NeighborFloor > 1 {
		return errors.New("temporal.neighbor_floor must be between 0 and 1")
	}
	if c.Temporal.SupermajorityFraction <= 0.5 || c.Temporal.SupermajorityFraction > 1 {
		return errors.New("temporal.supermajority_fraction must be in (0.5, 1]")
	}
	if c.Temporal.MaxWaitSeconds <= 0 {
		return errors.New("temporal.max_wait_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCommit() error {
	switch c.Commit.Mode {
	case "embed", "sidecar", "auto":
	default:
		return fmt.Errorf("commit.mode must be embed, sidecar, or auto, got %q", c.Commit.Mode)
	}
	switch c.Commit.KeywordPolicy {
	case "append", "overwrite":
	default:
		return fmt.Errorf("commit.keyword_policy must be append or overwrite, got %q", c.Commit.KeywordPolicy)
	}
	if c.Commit.TimeoutSeconds <= 0 {
		return errors.New("commit.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	pools := map[string]int{
		"workflow.decode_workers":    c.Workflow.DecodeWorkers,
		"workflow.recognize_workers": c.Workflow.RecognizeWorkers,
		"workflow.match_workers":     c.Workflow.MatchWorkers,
		"workflow.commit_workers":    c.Workflow.CommitWorkers,
	}
	for name, count := range pools {
		if count < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	intervals := map[string]int{
		"workflow.queue_poll_interval":      c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":     c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":       c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":        c.Workflow.HeartbeatTimeout,
		"workflow.resource_sample_interval": c.Workflow.ResourceSampleInterval,
		"workflow.counter_refresh_interval": c.Workflow.CounterRefreshInterval,
	}
	for name, value := range intervals {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.MinFreeDiskGiB < 0 {
		return errors.New("workflow.min_free_disk_gib must not be negative")
	}
	if c.Workflow.MaxResidentMemoryMiB < 0 {
		return errors.New("workflow.max_resident_memory_mib must not be negative")
	}
	return nil
}
