// ABOUTME: Package documentation for the tool packs.
// ABOUTME: Eight packs covering ingestion, datasets, graph, temporal, ontology, memory, self-improvement, diagnostics.

// Package tools implements the tool packs the server registers.
//
// Each pack constructor returns a registry.Pack wired to its
// dependencies (the API client, the call-history store, the error
// tracker). Tool schemas are declared as raw JSON strings; handlers
// decode typed input structs, apply defaults, call the upstream API,
// and return JSON documents for the dispatcher to render.
package tools
