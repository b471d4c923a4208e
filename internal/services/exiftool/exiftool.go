// Package exiftool wraps the exiftool binary for reading capture timestamps
// and writing keyword metadata into raster image files.
package exiftool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// exiftool's native timestamp format.
const timestampLayout = "2006:01:02 15:04:05"

// Tags is the metadata written during a commit.
type Tags struct {
	Keywords     []string
	Instructions string
}

// Service executes exiftool.
type Service struct {
	binary string

	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService constructs a Service for the given binary path.
func NewService(binary string) *Service {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "exiftool"
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

// ReadCaptureTime reports the original capture timestamp recorded in the
// file, or false when the file carries none.
func (s *Service) ReadCaptureTime(ctx context.Context, path string) (time.Time, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return time.Time{}, false, errors.New("exiftool read: empty path")
	}

	output, err := s.run(ctx, s.binary, "-j", "-DateTimeOriginal", "-CreateDate", "--", path)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("exiftool read: %w", err)
	}

	var records []struct {
		DateTimeOriginal string `json:"DateTimeOriginal"`
		CreateDate       string `json:"CreateDate"`
	}
	if err := json.Unmarshal(output, &records); err != nil {
		return time.Time{}, false, fmt.Errorf("exiftool parse: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}

	for _, raw := range []string{records[0].DateTimeOriginal, records[0].CreateDate} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if at, err := time.Parse(timestampLayout, raw); err == nil {
			return at, true, nil
		}
	}
	return time.Time{}, false, nil
}

// WriteTags writes the supplied keywords and instructions into the file at
// path. When appendKeywords is true existing keywords are preserved and new
// ones added without duplicates; otherwise the keyword lists are replaced.
// The caller is responsible for operating on a copy when the original must
// stay untouched until verification.
func (s *Service) WriteTags(ctx context.Context, path string, tags Tags, appendKeywords bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("exiftool write: empty path")
	}
	if len(tags.Keywords) == 0 && strings.TrimSpace(tags.Instructions) == "" {
		return errors.New("exiftool write: no tags to write")
	}

	args := []string{"-overwrite_original"}
	if !appendKeywords && len(tags.Keywords) > 0 {
		// Clear the lists first; later assignments repopulate them.
		args = append(args, "-IPTC:Keywords=", "-XMP-dc:Subject=")
	}
	for _, keyword := range tags.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if appendKeywords {
			// The -= before += removes any existing copy so appends
			// stay duplicate-free.
			args = append(args,
				"-IPTC:Keywords-="+keyword, "-IPTC:Keywords+="+keyword,
				"-XMP-dc:Subject-="+keyword, "-XMP-dc:Subject+="+keyword,
			)
		} else {
			args = append(args, "-IPTC:Keywords+="+keyword, "-XMP-dc:Subject+="+keyword)
		}
	}
	if instructions := strings.TrimSpace(tags.Instructions); instructions != "" {
		args = append(args, "-XMP-photoshop:Instructions="+instructions)
	}
	args = append(args, "--", path)

	if _, err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("exiftool write: %w", err)
	}
	return nil
}

// Available reports whether the configured binary can be located.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("exiftool binary %q not found: %w", s.binary, err)
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
