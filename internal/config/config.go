package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	PreviewDir string `toml:"preview_dir"`
	LogDir     string `toml:"log_dir"`
}

// Recognition configures the external race-number recognition service.
type Recognition struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	QualityPreset  string `toml:"quality_preset"`
	SportHint      string `toml:"sport_hint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Preview configures the RAW preview extraction tool.
type Preview struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Roster configures participant list loading.
type Roster struct {
	Path string `toml:"path"`
}

// Matcher tunes roster reconciliation scoring.
type Matcher struct {
	AcceptFloor     float64 `toml:"accept_floor"`
	ScoreEpsilon    float64 `toml:"score_epsilon"`
	MaxEditDistance int     `toml:"max_edit_distance"`
	NumberWeight    float64 `toml:"number_weight"`
	TokenWeight     float64 `toml:"token_weight"`
	CategoryPenalty float64 `toml:"category_penalty"`
}

// Temporal tunes burst detection and neighbor correction.
type Temporal struct {
	ClusterGapSeconds     float64 `toml:"cluster_gap_seconds"`
	LowConfidence         float64 `toml:"low_confidence"`
	NeighborFloor         float64 `toml:"neighbor_floor"`
	SupermajorityFraction float64 `toml:"supermajority_fraction"`
	MaxWaitSeconds        int     `toml:"max_wait_seconds"`
}

// Commit selects the metadata write strategy.
type Commit struct {
	// Mode is one of "embed", "sidecar", or "auto" (sidecar for RAW,
	// embedded for rasters).
	Mode string `toml:"mode"`
	// KeywordPolicy is "append" or "overwrite" for list-valued fields.
	KeywordPolicy  string `toml:"keyword_policy"`
	ExiftoolBinary string `toml:"exiftool_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains pool sizes, retry pacing, and resource ceilings.
type Workflow struct {
	DecodeWorkers    int `toml:"decode_workers"`
	RecognizeWorkers int `toml:"recognize_workers"`
	MatchWorkers     int `toml:"match_workers"`
	CommitWorkers    int `toml:"commit_workers"`

	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`

	MinFreeDiskGiB         int `toml:"min_free_disk_gib"`
	MaxResidentMemoryMiB   int `toml:"max_resident_memory_mib"`
	ResourceSampleInterval int `toml:"resource_sample_interval"`
	CounterRefreshInterval int `toml:"counter_refresh_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all runtime configuration.
//
// Sections by subsystem:
//   - Paths: state, preview cache, and log directories
//   - Recognition: external number-recognition service connection
//   - Preview: RAW preview extraction tool
//   - Roster: participant list input
//   - Matcher: roster reconciliation thresholds and weights
//   - Temporal: burst clustering and neighbor-correction thresholds
//   - Commit: metadata write strategy and keyword policy
//   - Workflow: stage pool sizes, retry pacing, resource ceilings
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Recognition Recognition `toml:"recognition"`
	Preview     Preview     `toml:"preview"`
	Roster      Roster      `toml:"roster"`
	Matcher     Matcher     `toml:"matcher"`
	Temporal    Temporal    `toml:"temporal"`
	Commit      Commit      `toml:"commit"`
	Workflow    Workflow    `toml:"workflow"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bibtag/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bibtag.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PreviewDir) == "" {
		c.Paths.PreviewDir = filepath.Join(c.Paths.StateDir, "previews")
	}
	if c.Paths.PreviewDir, err = expandPath(c.Paths.PreviewDir); err != nil {
		return fmt.Errorf("paths.preview_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Roster.Path) != "" {
		if c.Roster.Path, err = expandPath(c.Roster.Path); err != nil {
			return fmt.Errorf("roster.path: %w", err)
		}
	}

	c.Commit.Mode = strings.ToLower(strings.TrimSpace(c.Commit.Mode))
	c.Commit.KeywordPolicy = strings.ToLower(strings.TrimSpace(c.Commit.KeywordPolicy))
	if strings.TrimSpace(c.Commit.ExiftoolBinary) == "" {
		c.Commit.ExiftoolBinary = defaultExiftoolBinary
	}
	if strings.TrimSpace(c.Preview.Binary) == "" {
		c.Preview.Binary = defaultPreviewBinary
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates the directories a run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.PreviewDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}
