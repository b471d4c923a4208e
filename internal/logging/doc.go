// Package logging builds the slog loggers used across the pipeline and the
// attribute helpers that keep structured field names consistent.
package logging
