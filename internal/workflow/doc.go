// Package workflow advances work items through the processing pipeline.
//
// The Manager runs one worker pool per stage (decode, recognize, correct,
// match, commit), each claiming items atomically from the queue so pools
// drain independently and backpressure falls out of the per-status counts.
// It reclaims stale work via heartbeats, samples disk and memory to pause
// intake when a resource ceiling is breached, and detects run completion
// once ingest has finished and no item remains in a non-terminal status.
//
// Stage handlers own the per-item semantics; this package is the
// authoritative home for transitions, failure classification, and run
// lifecycle coordination.
package workflow
