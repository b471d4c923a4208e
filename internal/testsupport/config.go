// Package testsupport provides shared fixtures for package tests: seeded
// configurations, scratch image files, and store helpers.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bibtag/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.PreviewDir = filepath.Join(base, "previews")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Recognition.BaseURL = "http://127.0.0.1:0"
	cfgVal.Recognition.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{builder.cfg.Paths.StateDir, builder.cfg.Paths.PreviewDir, builder.cfg.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	return builder.cfg
}

// WithRecognitionURL points the test config at a recognition endpoint,
// typically an httptest server.
func WithRecognitionURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Recognition.BaseURL = url
	}
}

// WithCommitMode overrides the commit mode on the test config.
func WithCommitMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Commit.Mode = mode
	}
}

// WithRosterPath points the test config at a roster CSV.
func WithRosterPath(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Roster.Path = path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"exiftool", "rawpreview"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
