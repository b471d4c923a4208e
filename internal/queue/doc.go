// Package queue persists batch runs and their work items in SQLite and
// exposes helpers for driving the per-item lifecycle.
//
// The Store manages database connections, schema initialization, atomic
// stage claims, stats queries, heartbeat tracking, and stale-item recovery.
// Every status transition is written through the store, so a run that dies
// mid-flight can be resumed from the database alone: completed items stay
// completed, in-flight items roll back to the start of their current stage.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when you add new statuses or item fields, update schema.sql and bump
// schemaVersion.
package queue
