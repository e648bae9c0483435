// ABOUTME: Package mcperr defines the JSON-RPC error vocabulary of the server.
// ABOUTME: Stable codes, the Error type, FromError classification, and the error tracker.

// Package mcperr centralizes error handling for the MCP dispatch loop.
//
// Every failure that crosses the JSON-RPC boundary is expressed as an
// *Error with one of the stable protocol codes. Packages that know their
// code (auth, registry, upstream client) construct errors directly;
// FromError classifies everything else at the boundary. The Tracker keeps
// bounded diagnostics for the stats resources and the error_analysis tool.
package mcperr
