package decoding

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bibtag/internal/config"
	"bibtag/internal/fileutil"
	"bibtag/internal/imagefile"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/services/exiftool"
	"bibtag/internal/services/rawpreview"
	"bibtag/internal/testsupport"
)

func newTestDecoder(t *testing.T, cfg *config.Config, preview *rawpreview.Service, exif *exiftool.Service) *Decoder {
	t.Helper()
	if preview == nil {
		preview = rawpreview.NewService("rawpreview")
	}
	if exif == nil {
		exif = exiftool.NewService("exiftool")
		exif.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
			return []byte(`[{}]`), nil
		})
	}
	return NewDecoderWithDependencies(cfg, nil, preview, exif)
}

func TestPrepareRejectsUnsupportedFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	decoder := newTestDecoder(t, cfg, nil, nil)
	item := &queue.Item{SourcePath: "/photos/notes.txt"}

	err := decoder.Prepare(context.Background(), item)
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
	if !errors.Is(err, services.ErrUnreadable) {
		t.Errorf("expected unreadable marker, got %v", err)
	}
}

func TestPrepareClassifiesKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(t.TempDir(), "IMG_0042.CR3")
	if err := os.WriteFile(source, []byte("raw"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	decoder := newTestDecoder(t, cfg, nil, nil)
	item := &queue.Item{SourcePath: source}

	if err := decoder.Prepare(context.Background(), item); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if item.FileKind != imagefile.KindCR3 {
		t.Errorf("expected cr3 kind, got %q", item.FileKind)
	}
}

func TestExecuteRasterUsesSourceAsPreview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(t.TempDir(), "IMG_0001.jpg")
	if err := os.WriteFile(source, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	exif := exiftool.NewService("exiftool")
	exif.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`[{"DateTimeOriginal":"2026:06:14 09:31:07"}]`), nil
	})
	decoder := newTestDecoder(t, cfg, nil, exif)
	item := &queue.Item{SourcePath: source, FileKind: imagefile.KindJPEG}

	if err := decoder.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if item.PreviewPath != source {
		t.Errorf("expected preview to be the source, got %q", item.PreviewPath)
	}
	if item.SourceHash != "" {
		t.Errorf("rasters should not record a source hash, got %q", item.SourceHash)
	}
	if item.CaptureTime == nil {
		t.Error("expected capture time from metadata")
	}
}

func TestExecuteRawHashesAndExtracts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(t.TempDir(), "IMG_0042.NEF")
	if err := os.WriteFile(source, []byte("raw-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	wantHash, err := fileutil.HashFile(source)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	previewFile := filepath.Join(cfg.Paths.PreviewDir, "IMG_0042.jpg")
	preview := rawpreview.NewService("rawpreview")
	preview.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		if err := os.WriteFile(previewFile, []byte("jpeg"), 0o644); err != nil {
			return nil, err
		}
		return json.Marshal(rawpreview.Result{
			PreviewPath: "IMG_0042.jpg",
			CaptureTime: "2026:06:14 09:31:07",
		})
	})

	decoder := newTestDecoder(t, cfg, preview, nil)
	item := &queue.Item{SourcePath: source, FileKind: imagefile.KindNEF}
	if err := decoder.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if item.SourceHash != wantHash {
		t.Errorf("expected source hash %q, got %q", wantHash, item.SourceHash)
	}
	if item.PreviewPath != previewFile {
		t.Errorf("expected preview %q, got %q", previewFile, item.PreviewPath)
	}
	if item.CaptureTime == nil {
		t.Error("expected capture time from preview extraction")
	}
}

func TestExecuteMissingCaptureTimeIsNotFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(t.TempDir(), "IMG_0002.jpg")
	if err := os.WriteFile(source, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	decoder := newTestDecoder(t, cfg, nil, nil)
	item := &queue.Item{SourcePath: source, FileKind: imagefile.KindJPEG}

	if err := decoder.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if item.CaptureTime != nil {
		t.Errorf("expected nil capture time, got %v", item.CaptureTime)
	}
}
