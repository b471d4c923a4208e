package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnreadable marks files that cannot be decoded or opened. Terminal for
	// the affected item.
	ErrUnreadable = errors.New("unreadable source")
	// ErrTransient marks external-call failures that were retried and still
	// failed (network, timeout, rate limit).
	ErrTransient = errors.New("transient failure")
	// ErrIntegrity marks a RAW-protection breach: the source file's content
	// hash changed across a commit. Never recoverable.
	ErrIntegrity = errors.New("integrity violation")
	// ErrValidation marks bad inputs (malformed roster rows, unparsable
	// responses).
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable runtime configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing referents (unknown run, missing checkpoint).
	ErrNotFound = errors.New("not found")
	// ErrResourceExhausted marks a run-level disk/memory breach. Pauses
	// intake, never fails an individual item.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrExternalTool marks subprocess failures from the preview extractor or
	// exiftool.
	ErrExternalTool = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later failure classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureReason maps a stage error to the persisted failure classification.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnreadable):
		return "unreadable"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrResourceExhausted):
		return "resources"
	case errors.Is(err, ErrTransient), errors.Is(err, ErrExternalTool):
		return "transient"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return "invalid"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
