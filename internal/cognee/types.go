// ABOUTME: Wire types for the knowledge-graph REST API.
// ABOUTME: Request and response shapes for add, cognify, search, datasets, graph, ontology, memory.

package cognee

import "time"

// HealthStatus is the GET /health response.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// AddDataRequest is the POST /api/v1/add payload.
type AddDataRequest struct {
	Data        []string `json:"data"`
	DatasetName string   `json:"dataset_name,omitempty"`
}

// AddDataResponse reports the outcome of an ingestion request.
type AddDataResponse struct {
	DatasetID     string `json:"dataset_id"`
	IngestedCount int    `json:"ingested_count"`
	FailedCount   int    `json:"failed_count"`
	ProcessingID  string `json:"processing_id,omitempty"`
}

// CognifyRequest is the POST /api/v1/cognify payload.
type CognifyRequest struct {
	Datasets        []string `json:"datasets,omitempty"`
	DatasetIDs      []string `json:"dataset_ids,omitempty"`
	RunInBackground bool     `json:"run_in_background"`
}

// CognifyResponse reports a started or completed processing pipeline.
type CognifyResponse struct {
	PipelineRunID       string   `json:"pipeline_run_id"`
	Status              string   `json:"status"`
	DatasetIDs          []string `json:"dataset_ids,omitempty"`
	EstimatedCompletion string   `json:"estimated_completion,omitempty"`
}

// SearchRequest is the POST /api/v1/search payload. Search types are
// lowercase on the wire (graph_completion, chunks, summaries, feedback).
type SearchRequest struct {
	Query           string   `json:"query"`
	SearchType      string   `json:"search_type,omitempty"`
	DatasetIDs      []string `json:"dataset_ids,omitempty"`
	Limit           int      `json:"limit,omitempty"`
	IncludeMetadata bool     `json:"include_metadata"`
}

// SearchResult is one hit in a search response.
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Source   string         `json:"source,omitempty"`
}

// SearchResponse is the POST /api/v1/search response.
type SearchResponse struct {
	Query      string         `json:"query"`
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
	SearchTime float64        `json:"search_time,omitempty"`
}

// Dataset describes a dataset known to the upstream service.
type Dataset struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	OwnerID          string    `json:"owner_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	DataCount        int       `json:"data_count"`
	ProcessingStatus string    `json:"processing_status,omitempty"`
}

// GraphStats summarizes a dataset's knowledge graph.
type GraphStats struct {
	DatasetID         string         `json:"dataset_id,omitempty"`
	NodeCount         int            `json:"node_count"`
	EdgeCount         int            `json:"edge_count"`
	Labels            []string       `json:"labels,omitempty"`
	RelationshipTypes []string       `json:"relationship_types,omitempty"`
	LabelCounts       map[string]int `json:"label_counts,omitempty"`
}

// GraphQueryRequest is a cypher query against a dataset graph.
type GraphQueryRequest struct {
	Cypher string `json:"cypher"`
}

// GraphQueryResponse carries raw query rows; the row shape depends on the query.
type GraphQueryResponse struct {
	Results []map[string]any `json:"results"`
	Columns []string         `json:"columns,omitempty"`
}

// OntologyAttachRequest attaches an ontology document to a dataset.
type OntologyAttachRequest struct {
	Ontology string `json:"ontology"`
	Format   string `json:"format,omitempty"`
}

// OntologyExpandRequest expands a term through the dataset's ontology.
type OntologyExpandRequest struct {
	Term     string `json:"term"`
	NodeType string `json:"node_type,omitempty"`
	Directed bool   `json:"directed"`
	Persist  bool   `json:"persist"`
}

// MemoryItem is one entry in a dataset's conversational memory.
type MemoryItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryFeedbackRequest scores a memory entry.
type MemoryFeedbackRequest struct {
	MemoryIndex int     `json:"memory_index"`
	Score       float64 `json:"score"`
	Note        string  `json:"note,omitempty"`
}

// TimePoint is one bucket in the graph time metrics series.
type TimePoint struct {
	Timestamp  time.Time `json:"timestamp"`
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	EventCount int       `json:"event_count"`
}

// TimeMetrics is the GET /api/v1/datasets/{id}/graph/metrics/time response.
type TimeMetrics struct {
	DatasetID string      `json:"dataset_id,omitempty"`
	Series    []TimePoint `json:"series"`
}
