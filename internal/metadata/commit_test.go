package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bibtag/internal/config"
	"bibtag/internal/fileutil"
	"bibtag/internal/imagefile"
	"bibtag/internal/services"
	"bibtag/internal/services/exiftool"
)

func newTestCommitter(t *testing.T, mode, policy string, exif *exiftool.Service) *Committer {
	t.Helper()
	committer, err := NewCommitter(config.Commit{Mode: mode, KeywordPolicy: policy}, exif, nil)
	if err != nil {
		t.Fatalf("NewCommitter returned error: %v", err)
	}
	return committer
}

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestCommitSidecarForRaw(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0042.CR3", "raw-bytes")
	hash, err := fileutil.HashFile(source)
	if err != nil {
		t.Fatalf("hash source: %v", err)
	}

	committer := newTestCommitter(t, "auto", "append", nil)
	result := FinalResult{RaceNumber: "107", Name: "A. Rossi", Confidence: 0.93, Source: "exact"}
	outcome, err := committer.Commit(context.Background(), source, imagefile.KindCR3, result, hash)
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if outcome.Strategy != StrategySidecar {
		t.Errorf("expected sidecar strategy, got %q", outcome.Strategy)
	}
	if outcome.TargetPath != source+".xmp" {
		t.Errorf("unexpected sidecar path %q", outcome.TargetPath)
	}

	data, err := os.ReadFile(outcome.TargetPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	for _, want := range []string{"bib:107", "runner:A. Rossi", "identified via exact"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("sidecar missing %q:\n%s", want, data)
		}
	}

	after, err := fileutil.HashFile(source)
	if err != nil {
		t.Fatalf("hash source after commit: %v", err)
	}
	if after != hash {
		t.Error("raw source bytes changed during sidecar commit")
	}
}

func TestCommitSidecarIdempotentOnOverwrite(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0001.NEF", "raw")
	committer := newTestCommitter(t, "sidecar", "overwrite", nil)
	result := FinalResult{RaceNumber: "42", Source: "fuzzy", Confidence: 0.71}

	first, err := committer.Commit(context.Background(), source, imagefile.KindNEF, result, "")
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	firstData, err := os.ReadFile(first.TargetPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}

	if _, err := committer.Commit(context.Background(), source, imagefile.KindNEF, result, ""); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	secondData, err := os.ReadFile(first.TargetPath)
	if err != nil {
		t.Fatalf("re-read sidecar: %v", err)
	}
	if string(firstData) != string(secondData) {
		t.Errorf("repeated overwrite commit changed sidecar content:\n%s\n---\n%s", firstData, secondData)
	}
	if count := strings.Count(string(secondData), "bib:42"); count != 1 {
		t.Errorf("expected keyword once, found %d times", count)
	}
}

func TestCommitSidecarAppendPreservesExistingKeywords(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0002.ARW", "raw")
	committer := newTestCommitter(t, "sidecar", "append", nil)

	if _, err := committer.Commit(context.Background(), source, imagefile.KindARW, FinalResult{RaceNumber: "7"}, ""); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	outcome, err := committer.Commit(context.Background(), source, imagefile.KindARW, FinalResult{RaceNumber: "7", Team: "Blue"}, "")
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}

	data, err := os.ReadFile(outcome.TargetPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if strings.Count(string(data), "bib:7") != 1 {
		t.Errorf("append accumulated duplicate keywords:\n%s", data)
	}
	if !strings.Contains(string(data), "team:Blue") {
		t.Errorf("append dropped new keyword:\n%s", data)
	}
}

func TestCommitEmbedRefusedForRaw(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0003.CR2", "raw")
	committer := newTestCommitter(t, "embed", "append", nil)

	_, err := committer.Commit(context.Background(), source, imagefile.KindCR2, FinalResult{RaceNumber: "9"}, "")
	if err == nil {
		t.Fatal("expected embed-against-raw to fail closed")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(source + ".xmp"); !os.IsNotExist(statErr) {
		t.Error("refused embed must not silently downgrade to a sidecar")
	}
}

func TestCommitEmbedWritesViaTempCopy(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0004.jpg", "jpeg-original")

	exif := exiftool.NewService("exiftool")
	exif.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		target := args[len(args)-1]
		if target == source {
			t.Error("embed wrote the original directly instead of a working copy")
		}
		return nil, os.WriteFile(target, []byte("jpeg-with-tags"), 0o644)
	})

	committer := newTestCommitter(t, "embed", "append", exif)
	outcome, err := committer.Commit(context.Background(), source, imagefile.KindJPEG, FinalResult{RaceNumber: "55"}, "")
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if outcome.Strategy != StrategyEmbed || outcome.TargetPath != source {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(data) != "jpeg-with-tags" {
		t.Errorf("expected tagged content, got %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestCommitEmbedFailureLeavesOriginalIntact(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0005.jpg", "jpeg-original")

	exif := exiftool.NewService("exiftool")
	exif.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exiftool exploded")
	})

	committer := newTestCommitter(t, "embed", "append", exif)
	_, err := committer.Commit(context.Background(), source, imagefile.KindJPEG, FinalResult{RaceNumber: "55"}, "")
	if err == nil {
		t.Fatal("expected commit failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Errorf("expected external tool error, got %v", err)
	}
	data, readErr := os.ReadFile(source)
	if readErr != nil {
		t.Fatalf("read source: %v", readErr)
	}
	if string(data) != "jpeg-original" {
		t.Errorf("failed commit altered the original: %q", data)
	}
}

func TestCommitDetectsRawHashDrift(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "IMG_0006.RAF", "raw-v1")
	committer := newTestCommitter(t, "sidecar", "append", nil)

	// Hash recorded at decode no longer matches the file on disk.
	writeSource(t, dir, "IMG_0006.RAF", "raw-v2-mutated")
	staleHash := "0000000000000000000000000000000000000000000000000000000000000000"
	_, err := committer.Commit(context.Background(), source, imagefile.KindRAF, FinalResult{RaceNumber: "3"}, staleHash)
	if err == nil {
		t.Fatal("expected integrity failure")
	}
	if !errors.Is(err, services.ErrIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
	if services.FailureReason(err) != "integrity" {
		t.Errorf("unexpected failure reason %q", services.FailureReason(err))
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
	mode, err := ParseMode("")
	if err != nil || mode != ModeAuto {
		t.Errorf("expected empty mode to default to auto, got %q err %v", mode, err)
	}
}
