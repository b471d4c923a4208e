package rawpreview

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExtractParsesToolOutput(t *testing.T) {
	outDir := t.TempDir()
	previewPath := filepath.Join(outDir, "IMG_0042.jpg")
	if err := os.WriteFile(previewPath, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write preview: %v", err)
	}

	svc := NewService("rawpreview")
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "rawpreview" {
			t.Errorf("unexpected binary %q", name)
		}
		gotArgs = args
		return json.Marshal(Result{
			PreviewPath: "IMG_0042.jpg",
			Width:       1620,
			Height:      1080,
			CaptureTime: "2026:06:14 09:31:07",
		})
	})

	result, err := svc.Extract(context.Background(), "/photos/IMG_0042.CR3", outDir)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if result.PreviewPath != previewPath {
		t.Errorf("expected resolved preview path %q, got %q", previewPath, result.PreviewPath)
	}
	if len(gotArgs) == 0 || gotArgs[len(gotArgs)-1] != "/photos/IMG_0042.CR3" {
		t.Errorf("expected raw path as final argument, got %v", gotArgs)
	}

	at, ok := result.CaptureTimestamp()
	if !ok {
		t.Fatal("expected a capture timestamp")
	}
	want := time.Date(2026, 6, 14, 9, 31, 7, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("expected %v, got %v", want, at)
	}
}

func TestExtractRejectsMissingPreview(t *testing.T) {
	svc := NewService("rawpreview")
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return json.Marshal(Result{PreviewPath: "does-not-exist.jpg"})
	})
	if _, err := svc.Extract(context.Background(), "/photos/a.NEF", t.TempDir()); err == nil {
		t.Fatal("expected error for missing preview file")
	}
}

func TestExtractRejectsEmptyReport(t *testing.T) {
	svc := NewService("rawpreview")
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{}`), nil
	})
	if _, err := svc.Extract(context.Background(), "/photos/a.ARW", t.TempDir()); err == nil {
		t.Fatal("expected error when tool reports no preview")
	}
}

func TestCaptureTimestampAbsent(t *testing.T) {
	var result Result
	if _, ok := result.CaptureTimestamp(); ok {
		t.Fatal("expected no timestamp for empty capture time")
	}
}
