package queue

import (
	"strings"
	"time"

	"bibtag/internal/imagefile"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusPending         Status = "pending"
	StatusDecoding        Status = "decoding"
	StatusDecoded         Status = "decoded"
	StatusRecognizing     Status = "recognizing"
	StatusRecognized      Status = "recognized"
	StatusTemporalPending Status = "temporal_pending"
	StatusCorrecting      Status = "correcting"
	StatusCorrected       Status = "corrected"
	StatusMatching        Status = "matching"
	StatusMatched         Status = "matched"
	StatusCommitting      Status = "committing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// RunStatus represents the lifecycle of a batch run.
type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusDecoding,
	StatusDecoded,
	StatusRecognizing,
	StatusRecognized,
	StatusTemporalPending,
	StatusCorrecting,
	StatusCorrected,
	StatusMatching,
	StatusMatched,
	StatusCommitting,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusDecoding:    {},
	StatusRecognizing: {},
	StatusCorrecting:  {},
	StatusMatching:    {},
	StatusCommitting:  {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions return an interrupted item to the start of its
// current stage so resume never repeats completed work and never skips
// unfinished work.
var stageRollbackTransitions = []statusTransition{
	{from: StatusDecoding, to: StatusPending},
	{from: StatusRecognizing, to: StatusDecoded},
	{from: StatusCorrecting, to: StatusRecognized},
	{from: StatusMatching, to: StatusCorrected},
	{from: StatusCommitting, to: StatusMatched},
}

// Run is one batch submission persisted in SQLite.
type Run struct {
	ID          string
	Status      RunStatus
	ConfigJSON  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Item represents a work item persisted in SQLite.
type Item struct {
	ID              int64
	RunID           string
	SourcePath      string
	FileKind        imagefile.Kind
	Status          Status
	FailureReason   string
	ErrorMessage    string
	CaptureTime     *time.Time
	SourceHash      string
	PreviewPath     string
	CandidateJSON   string
	CorrectedJSON   string
	MatchJSON       string
	CommitJSON      string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeat   *time.Time
	NeedsReview     bool
	ReviewReason    string
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Waiting    int
	Failed     int
	Completed  int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status ends an item's lifecycle.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}

// SetProgress updates all three progress fields together.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item as failed with the given reason and message.
func (i *Item) SetFailed(reason, message string) {
	i.Status = StatusFailed
	i.FailureReason = reason
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.ProgressStage = "failed"
	i.LastHeartbeat = nil
}
