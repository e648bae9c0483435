// ABOUTME: Package cognee is the HTTP client for the remote knowledge-graph API.
// ABOUTME: One wrapper handles auth injection, retries, rate limiting, and error shapes.

// Package cognee wraps the upstream knowledge-graph REST API.
//
// All graph, ontology, and memory reasoning happens server-side; this client
// only moves requests and responses. Transport failures and upstream status
// codes are normalized into a small set of sentinel errors plus APIError so
// the dispatch layer can classify them without parsing response bodies.
package cognee
