// ABOUTME: Package documentation for call history persistence.
// ABOUTME: SQLite-backed record of tool invocations for self-improvement tools.

// Package history persists a bounded record of tool invocations.
//
// Each tools/call run appends one entry with timing, outcome, and
// error detail. The self-improvement tools query this record to
// report usage patterns, failure clusters, and performance trends.
package history
