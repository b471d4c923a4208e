package committing

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bibtag/internal/config"
	"bibtag/internal/ident"
	"bibtag/internal/imagefile"
	"bibtag/internal/metadata"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/services/exiftool"
)

func newSidecarHandler(t *testing.T) *Committer {
	t.Helper()
	commits, err := metadata.NewCommitter(config.Commit{Mode: "sidecar"}, exiftool.NewService("exiftool"), nil)
	if err != nil {
		t.Fatalf("build committer: %v", err)
	}
	return NewCommitter(commits, nil)
}

func itemWith(t *testing.T, dir string, record ident.MatchRecord) *queue.Item {
	t.Helper()
	source := filepath.Join(dir, "race.jpg")
	if err := os.WriteFile(source, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	encoded, err := ident.Encode(record)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	return &queue.Item{
		ID:         1,
		SourcePath: source,
		FileKind:   imagefile.KindJPEG,
		MatchJSON:  encoded,
	}
}

func TestExecuteWritesSidecarAndOutcome(t *testing.T) {
	handler := newSidecarHandler(t)
	item := itemWith(t, t.TempDir(), ident.MatchRecord{
		Number: "107",
		Name:   "A. Rossi",
		Score:  0.91,
		Source: "exact",
	})

	if err := handler.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if item.CommitJSON == "" {
		t.Fatal("expected commit outcome to be recorded")
	}
	var outcome metadata.Outcome
	if err := json.Unmarshal([]byte(item.CommitJSON), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.Strategy != metadata.StrategySidecar {
		t.Errorf("strategy = %q, want sidecar", outcome.Strategy)
	}
	if _, err := os.Stat(metadata.SidecarPath(item.SourcePath)); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}
}

func TestExecuteSkipsUnidentifiedPhotos(t *testing.T) {
	handler := newSidecarHandler(t)
	item := itemWith(t, t.TempDir(), ident.MatchRecord{
		Source:    "unmatched",
		Rationale: "no race number recognized",
	})

	if err := handler.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if item.CommitJSON != "" {
		t.Errorf("unexpected outcome recorded: %s", item.CommitJSON)
	}
	if _, err := os.Stat(metadata.SidecarPath(item.SourcePath)); !os.IsNotExist(err) {
		t.Error("sidecar must not be written for an unidentified photo")
	}
}

func TestPrepareRejectsCorruptRecord(t *testing.T) {
	handler := newSidecarHandler(t)
	item := &queue.Item{ID: 1, MatchJSON: "{not json"}

	err := handler.Prepare(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHealthCheckSidecarNeedsNoTool(t *testing.T) {
	handler := newSidecarHandler(t)
	health := handler.HealthCheck(context.Background())
	if !health.Ready {
		t.Errorf("sidecar commits must be healthy without exiftool: %s", health.Detail)
	}
}
