// Package rawpreview wraps the rawpreview extraction tool, which pulls the
// embedded JPEG preview out of camera raw files without decoding the raw
// sensor data.
package rawpreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Result describes one extracted preview.
type Result struct {
	PreviewPath string `json:"preview_path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	CaptureTime string `json:"capture_time"`
}

// CaptureTimestamp parses the capture time reported by the tool, or returns
// false when the raw file carried none.
func (r Result) CaptureTimestamp() (time.Time, bool) {
	trimmed := strings.TrimSpace(r.CaptureTime)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006:01:02 15:04:05"} {
		if at, err := time.Parse(layout, trimmed); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}

// Service executes the preview extraction binary.
type Service struct {
	binary string

	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService constructs a Service for the given binary path.
func NewService(binary string) *Service {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "rawpreview"
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

// Extract pulls the embedded preview from rawPath into outDir and decodes the
// tool's JSON report.
func (s *Service) Extract(ctx context.Context, rawPath, outDir string) (Result, error) {
	rawPath = strings.TrimSpace(rawPath)
	if rawPath == "" {
		return Result{}, errors.New("rawpreview extract: empty path")
	}
	outDir = strings.TrimSpace(outDir)
	if outDir == "" {
		return Result{}, errors.New("rawpreview extract: empty output directory")
	}

	output, err := s.run(ctx, s.binary, "--json", "--out", outDir, "--", rawPath)
	if err != nil {
		return Result{}, fmt.Errorf("rawpreview extract: %w", err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("rawpreview parse: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if strings.TrimSpace(result.PreviewPath) == "" {
		return Result{}, errors.New("rawpreview extract: tool reported no preview")
	}
	if !filepath.IsAbs(result.PreviewPath) {
		result.PreviewPath = filepath.Join(outDir, result.PreviewPath)
	}
	if _, err := os.Stat(result.PreviewPath); err != nil {
		return Result{}, fmt.Errorf("rawpreview extract: preview missing: %w", err)
	}
	return result, nil
}

// Available reports whether the configured binary can be located.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("rawpreview binary %q not found: %w", s.binary, err)
	}
	return nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}
