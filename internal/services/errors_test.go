package services_test

import (
	"errors"
	"strings"
	"testing"

	"bibtag/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "recognize", "post image", "service unavailable", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "recognize: post image") {
		t.Fatalf("expected stage detail in message, got %q", err.Error())
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "commit", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected default transient marker, got %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrUnreadable, "decode", "extract preview", "", nil), "unreadable"},
		{services.Wrap(services.ErrTransient, "recognize", "", "", nil), "transient"},
		{services.Wrap(services.ErrExternalTool, "commit", "exiftool", "", nil), "transient"},
		{services.Wrap(services.ErrIntegrity, "commit", "", "hash drift", nil), "integrity"},
		{services.Wrap(services.ErrResourceExhausted, "workflow", "intake", "disk floor", nil), "resources"},
		{services.Wrap(services.ErrValidation, "roster", "", "", nil), "invalid"},
		{errors.New("plain"), "internal"},
	}
	for _, tc := range cases {
		if got := services.FailureReason(tc.err); got != tc.want {
			t.Fatalf("FailureReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
