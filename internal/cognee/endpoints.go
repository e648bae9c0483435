// ABOUTME: Typed endpoint methods of the knowledge-graph API.
// ABOUTME: Health, ingestion, cognify, search, datasets, graph, ontology, memory, metrics.

package cognee

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Health checks the basic upstream health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthDetailed fetches the detailed health report. The shape varies by
// deployment, so it stays a generic map.
func (c *Client) HealthDetailed(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/health/detailed", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddData ingests text payloads into a dataset.
func (c *Client) AddData(ctx context.Context, req AddDataRequest) (*AddDataResponse, error) {
	var out AddDataResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/add", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cognify starts knowledge-graph processing for the named datasets.
func (c *Client) Cognify(ctx context.Context, req CognifyRequest) (*CognifyResponse, error) {
	var out CognifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/cognify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search queries the knowledge graph.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDatasets returns all datasets visible to the caller.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var out []Dataset
	if err := c.do(ctx, http.MethodGet, "/api/v1/datasets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDataset fetches one dataset by id.
func (c *Client) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var out Dataset
	if err := c.do(ctx, http.MethodGet, "/api/v1/datasets/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDataset removes a dataset and its graph.
func (c *Client) DeleteDataset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/datasets/"+url.PathEscape(id), nil, nil)
}

// GraphStats fetches graph statistics. With an empty datasetID the upstream
// aggregate endpoint is used.
func (c *Client) GraphStats(ctx context.Context, datasetID string) (*GraphStats, error) {
	path := "/api/v1/datasets/graph/stats"
	if datasetID != "" {
		path += "?dataset_id=" + url.QueryEscape(datasetID)
	}
	var out GraphStats
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GraphLabels lists node labels, per dataset when datasetID is set.
func (c *Client) GraphLabels(ctx context.Context, datasetID string, limit int) ([]string, error) {
	var path string
	if datasetID != "" {
		path = "/api/v1/datasets/" + url.PathEscape(datasetID) + "/graph/labels"
		if limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}
	} else {
		path = "/api/v1/graph/labels"
		if limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}
	}

	var out struct {
		Labels []string `json:"labels"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

// GraphQuery runs a cypher query against a dataset graph.
func (c *Client) GraphQuery(ctx context.Context, datasetID, cypher string) (*GraphQueryResponse, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/graph"
	var out GraphQueryResponse
	if err := c.do(ctx, http.MethodPost, path, GraphQueryRequest{Cypher: cypher}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OntologyAttach attaches an ontology document to a dataset.
func (c *Client) OntologyAttach(ctx context.Context, datasetID string, req OntologyAttachRequest) (map[string]any, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/ontology/attach"
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OntologyExpand expands a term through the dataset ontology.
func (c *Client) OntologyExpand(ctx context.Context, datasetID string, req OntologyExpandRequest) (map[string]any, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/ontology/expand"
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryAppend appends one entry to a dataset's memory.
func (c *Client) MemoryAppend(ctx context.Context, datasetID, role, content string) (map[string]any, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/memory/append"
	payload := map[string]string{"role": role, "content": content}
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryList returns all memory entries for a dataset.
func (c *Client) MemoryList(ctx context.Context, datasetID string) ([]MemoryItem, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/memory"
	var out struct {
		Memory []MemoryItem `json:"memory"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Memory, nil
}

// MemoryClear deletes all memory entries for a dataset.
func (c *Client) MemoryClear(ctx context.Context, datasetID string) (map[string]any, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/memory/clear"
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, path, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryFeedback scores a memory entry by index.
func (c *Client) MemoryFeedback(ctx context.Context, datasetID string, req MemoryFeedbackRequest) (map[string]any, error) {
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/memory/feedback"
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GraphMetricsTime fetches the time-bucketed graph metrics series.
func (c *Client) GraphMetricsTime(ctx context.Context, datasetID string, start, end time.Time) (*TimeMetrics, error) {
	values := url.Values{}
	if !start.IsZero() {
		values.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		values.Set("end", end.UTC().Format(time.RFC3339))
	}
	path := "/api/v1/datasets/" + url.PathEscape(datasetID) + "/graph/metrics/time"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var out TimeMetrics
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
