// Package temporal clusters photos into capture-time bursts and revises
// low-confidence race-number guesses using neighbor consensus. Ordering is
// anchored to capture timestamps, not recognition completion order, so items
// that finish recognition late can still correct earlier finishers inside the
// same burst.
package temporal
