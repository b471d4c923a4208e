// Package match reconciles recognized race numbers against the participant
// roster. Matching is a pure function of the guess, the roster snapshot, and
// the configured thresholds; it has no side effects and is safe to call from
// any number of workers.
package match
