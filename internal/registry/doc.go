// ABOUTME: Package documentation for the tool registry.
// ABOUTME: Explains packs, the call pipeline, and stats collection.

// Package registry manages the catalog of tools the server exposes.
//
// Tools arrive grouped into packs. Each tool carries a definition (name,
// category, input schema, rate limit, timeout) and a handler. Call runs
// the full pipeline for a tool invocation: lookup, enabled check,
// per-tool rate limiting, input validation against the tool's schema,
// and execution under the tool's timeout. Per-tool call statistics are
// collected for the stats resources.
package registry
