// ABOUTME: Package documentation for the stdio MCP dispatcher.
// ABOUTME: Wire format, lifecycle, and concurrency notes.

// Package mcp implements the JSON-RPC 2.0 dispatcher for the Model
// Context Protocol over stdio.
//
// Requests arrive one JSON object per line on stdin; responses go to
// stdout, logs to stderr. A session must send initialize before any
// other request (ping excepted). Tool calls run concurrently up to a
// configured bound, so responses may complete out of order; the
// line-delimited framing and request ids make that safe.
package mcp
