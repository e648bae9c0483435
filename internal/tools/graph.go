// ABOUTME: Graph pack exposes direct graph access: cypher queries, labels, stats, samples.
// ABOUTME: Tools without a dataset_id fall back to the first dataset and say so.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/registry"
)

// GraphPack creates the graph exploration pack.
func GraphPack(client *cognee.Client) *registry.Pack {
	g := &graphHandlers{client: client}
	return &registry.Pack{
		ID: "graph",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "graph_query",
					Description:     "Run a cypher query against a dataset graph",
					Category:        "graph",
					InputSchemaJSON: `{"type":"object","properties":{"cypher":{"type":"string","description":"Cypher query to execute"},"dataset_id":{"type":"string","description":"Dataset to query; defaults to the first dataset"}},"required":["cypher"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: g.Query,
			},
			{
				Definition: registry.Definition{
					Name:            "graph_labels",
					Description:     "List node labels in a dataset graph",
					Category:        "graph",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"},"limit":{"type":"integer","default":50}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: g.Labels,
			},
			{
				Definition: registry.Definition{
					Name:            "graph_stats",
					Description:     "Node and edge counts for a dataset graph",
					Category:        "graph",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: g.Stats,
			},
			{
				Definition: registry.Definition{
					Name:            "graph_sample",
					Description:     "Sample nodes and relationships from a dataset graph",
					Category:        "graph",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"},"node_limit":{"type":"integer","default":10},"relationship_limit":{"type":"integer","default":10},"label":{"type":"string","description":"Restrict node sample to one label"}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: g.Sample,
			},
			{
				Definition: registry.Definition{
					Name:            "graph_counts_by_label",
					Description:     "Node counts per label, sorted descending",
					Category:        "graph",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"},"limit":{"type":"integer","default":100}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: g.CountsByLabel,
			},
		},
	}
}

type graphHandlers struct {
	client *cognee.Client
}

type graphQueryInput struct {
	Cypher    string `json:"cypher"`
	DatasetID string `json:"dataset_id"`
}

func (g *graphHandlers) Query(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in graphQueryInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	datasetID, defaulted, err := defaultDataset(ctx, g.client, in.DatasetID)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.GraphQuery(ctx, datasetID, in.Cypher)
	if err != nil {
		return nil, fmt.Errorf("running graph query: %w", err)
	}

	return respond(map[string]any{
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"columns":           resp.Columns,
		"row_count":         len(resp.Results),
		"results":           resp.Results,
	})
}

type graphLabelsInput struct {
	DatasetID string `json:"dataset_id"`
	Limit     int    `json:"limit"`
}

func (g *graphHandlers) Labels(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in graphLabelsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 50
	}

	labels, err := g.client.GraphLabels(ctx, in.DatasetID, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetching graph labels: %w", err)
	}

	return respond(map[string]any{
		"dataset_id": in.DatasetID,
		"count":      len(labels),
		"labels":     labels,
	})
}

type graphStatsInput struct {
	DatasetID string `json:"dataset_id"`
}

func (g *graphHandlers) Stats(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in graphStatsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	stats, err := g.client.GraphStats(ctx, in.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("fetching graph stats: %w", err)
	}
	return respond(stats)
}

type graphSampleInput struct {
	DatasetID         string `json:"dataset_id"`
	NodeLimit         int    `json:"node_limit"`
	RelationshipLimit int    `json:"relationship_limit"`
	Label             string `json:"label"`
}

func (g *graphHandlers) Sample(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in graphSampleInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.NodeLimit <= 0 {
		in.NodeLimit = 10
	}
	if in.RelationshipLimit <= 0 {
		in.RelationshipLimit = 10
	}

	datasetID, defaulted, err := defaultDataset(ctx, g.client, in.DatasetID)
	if err != nil {
		return nil, err
	}

	nodeQuery := fmt.Sprintf("MATCH (n) RETURN n LIMIT %d", in.NodeLimit)
	if in.Label != "" {
		nodeQuery = fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT %d", in.Label, in.NodeLimit)
	}
	nodes, err := g.client.GraphQuery(ctx, datasetID, nodeQuery)
	if err != nil {
		return nil, fmt.Errorf("sampling nodes: %w", err)
	}

	relQuery := fmt.Sprintf("MATCH (a)-[r]->(b) RETURN a, type(r) AS rel, b LIMIT %d", in.RelationshipLimit)
	rels, err := g.client.GraphQuery(ctx, datasetID, relQuery)
	if err != nil {
		return nil, fmt.Errorf("sampling relationships: %w", err)
	}

	return respond(map[string]any{
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"nodes":             nodes.Results,
		"relationships":     rels.Results,
	})
}

type graphCountsInput struct {
	DatasetID string `json:"dataset_id"`
	Limit     int    `json:"limit"`
}

type labelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func (g *graphHandlers) CountsByLabel(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in graphCountsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 100
	}

	stats, err := g.client.GraphStats(ctx, in.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("fetching graph stats: %w", err)
	}

	counts := make([]labelCount, 0, len(stats.LabelCounts))
	for label, count := range stats.LabelCounts {
		counts = append(counts, labelCount{Label: label, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	if len(counts) > in.Limit {
		counts = counts[:in.Limit]
	}

	top := counts
	if len(top) > 10 {
		top = top[:10]
	}

	return respond(map[string]any{
		"dataset_id":   in.DatasetID,
		"total_labels": len(stats.LabelCounts),
		"top":          top,
		"counts":       counts,
	})
}
