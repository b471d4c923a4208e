package queue

import (
	"database/sql"
	"errors"
	"time"

	"bibtag/internal/imagefile"
)

const itemColumns = "id, run_id, source_path, file_kind, status, failure_reason, error_message, capture_time, source_hash, preview_path, candidate_json, corrected_json, match_json, commit_json, progress_stage, progress_percent, progress_message, retry_count, created_at, updated_at, last_heartbeat, needs_review, review_reason"

const runColumns = "id, status, config_json, created_at, updated_at, completed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		runID            string
		sourcePath       string
		fileKind         sql.NullString
		statusStr        string
		failureReason    sql.NullString
		errorMessage     sql.NullString
		captureRaw       sql.NullString
		sourceHash       sql.NullString
		previewPath      sql.NullString
		candidateJSON    sql.NullString
		correctedJSON    sql.NullString
		matchJSON        sql.NullString
		commitJSON       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		retryCount       sql.NullInt64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&sourcePath,
		&fileKind,
		&statusStr,
		&failureReason,
		&errorMessage,
		&captureRaw,
		&sourceHash,
		&previewPath,
		&candidateJSON,
		&correctedJSON,
		&matchJSON,
		&commitJSON,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&retryCount,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
		&needsReview,
		&reviewReason,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		RunID:           runID,
		SourcePath:      sourcePath,
		Status:          Status(statusStr),
		FailureReason:   failureReason.String,
		ErrorMessage:    errorMessage.String,
		SourceHash:      sourceHash.String,
		PreviewPath:     previewPath.String,
		CandidateJSON:   candidateJSON.String,
		CorrectedJSON:   correctedJSON.String,
		MatchJSON:       matchJSON.String,
		CommitJSON:      commitJSON.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		RetryCount:      int(retryCount.Int64),
		ReviewReason:    reviewReason.String,
	}
	// Unrecognized stored kinds stay empty rather than flowing through as a
	// bogus Kind value; decoding re-classifies from the path.
	if kind, ok := imagefile.ParseKind(fileKind.String); ok {
		item.FileKind = kind
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}
	if captureRaw.Valid {
		if capture, err := parseTimeString(captureRaw.String); err == nil {
			item.CaptureTime = &capture
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           string
		statusStr    string
		configJSON   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &statusStr, &configJSON, &createdRaw, &updatedRaw, &completedRaw); err != nil {
		return nil, err
	}
	run := &Run{
		ID:         id,
		Status:     RunStatus(statusStr),
		ConfigJSON: configJSON.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		run.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			run.CompletedAt = &completed
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
