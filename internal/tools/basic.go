// ABOUTME: Basic pack provides the core knowledge-graph tools: ingest, cognify, search, status.
// ABOUTME: These are the tools every deployment gets regardless of feature flags.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/registry"
)

// BasicPack creates the basic pack with add_text, add_files, cognify, search, and status.
func BasicPack(client *cognee.Client) *registry.Pack {
	b := &basicHandlers{client: client}
	return &registry.Pack{
		ID: "basic",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "add_text",
					Description:     "Add text content to the knowledge graph for processing",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object","properties":{"text":{"type":"string","description":"Text content to add"},"dataset_name":{"type":"string","description":"Target dataset","default":"main_dataset"}},"required":["text"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: b.AddText,
			},
			{
				Definition: registry.Definition{
					Name:            "add_files",
					Description:     "Ingest local files into the knowledge graph",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object","properties":{"files":{"type":"array","items":{"type":"string"},"description":"File paths to ingest"},"dataset_name":{"type":"string","default":"main_dataset"}},"required":["files"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         120 * time.Second,
					Enabled:         true,
				},
				Handler: b.AddFiles,
			},
			{
				Definition: registry.Definition{
					Name:            "cognify",
					Description:     "Process ingested data into knowledge graph structures",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object","properties":{"datasets":{"type":"array","items":{"type":"string"},"description":"Dataset names to process"},"dataset_ids":{"type":"array","items":{"type":"string"},"description":"Dataset ids to process"},"run_in_background":{"type":"boolean","default":false}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         300 * time.Second,
					Enabled:         true,
				},
				Handler: b.Cognify,
			},
			{
				Definition: registry.Definition{
					Name:            "search",
					Description:     "Search the knowledge graph",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object","properties":{"query":{"type":"string","description":"Search query"},"search_type":{"type":"string","enum":["graph_completion","chunks","summaries","feedback"],"default":"graph_completion"},"dataset_ids":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer","default":10},"include_metadata":{"type":"boolean","default":true}},"required":["query"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         30 * time.Second,
					Enabled:         true,
				},
				Handler: b.Search,
			},
			{
				Definition: registry.Definition{
					Name:            "status",
					Description:     "Check upstream service health",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object","properties":{"detailed":{"type":"boolean","default":false}}}`,
					RequiresAuth:    false,
					RateLimitPerMin: 120,
					Timeout:         10 * time.Second,
					Enabled:         true,
				},
				Handler: b.Status,
			},
		},
	}
}

type basicHandlers struct {
	client *cognee.Client
}

type addTextInput struct {
	Text        string `json:"text"`
	DatasetName string `json:"dataset_name"`
}

func (b *basicHandlers) AddText(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in addTextInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.DatasetName == "" {
		in.DatasetName = "main_dataset"
	}

	resp, err := b.client.AddData(ctx, cognee.AddDataRequest{
		Data:        []string{in.Text},
		DatasetName: in.DatasetName,
	})
	if err != nil {
		return nil, fmt.Errorf("adding text: %w", err)
	}

	return respond(map[string]any{
		"status":         "ok",
		"dataset":        in.DatasetName,
		"dataset_id":     resp.DatasetID,
		"ingested_count": resp.IngestedCount,
		"processing_id":  resp.ProcessingID,
	})
}

type addFilesInput struct {
	Files       []string `json:"files"`
	DatasetName string   `json:"dataset_name"`
}

func (b *basicHandlers) AddFiles(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in addFilesInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.DatasetName == "" {
		in.DatasetName = "main_dataset"
	}

	var payloads []string
	var failed []string
	for _, path := range in.Files {
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		payloads = append(payloads, string(content))
	}

	if len(payloads) == 0 {
		return nil, fmt.Errorf("no readable files among %d given: %s", len(in.Files), strings.Join(failed, "; "))
	}

	resp, err := b.client.AddData(ctx, cognee.AddDataRequest{
		Data:        payloads,
		DatasetName: in.DatasetName,
	})
	if err != nil {
		return nil, fmt.Errorf("adding files: %w", err)
	}

	return respond(map[string]any{
		"status":         "ok",
		"dataset":        in.DatasetName,
		"dataset_id":     resp.DatasetID,
		"ingested_count": resp.IngestedCount,
		"failed_files":   failed,
	})
}

type cognifyInput struct {
	Datasets        []string `json:"datasets"`
	DatasetIDs      []string `json:"dataset_ids"`
	RunInBackground bool     `json:"run_in_background"`
}

func (b *basicHandlers) Cognify(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in cognifyInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	resp, err := b.client.Cognify(ctx, cognee.CognifyRequest{
		Datasets:        in.Datasets,
		DatasetIDs:      in.DatasetIDs,
		RunInBackground: in.RunInBackground,
	})
	if err != nil {
		return nil, fmt.Errorf("starting cognify: %w", err)
	}

	return respond(map[string]any{
		"pipeline_run_id":      resp.PipelineRunID,
		"status":               resp.Status,
		"dataset_ids":          resp.DatasetIDs,
		"estimated_completion": resp.EstimatedCompletion,
		"background":           in.RunInBackground,
	})
}

type searchInput struct {
	Query           string   `json:"query"`
	SearchType      string   `json:"search_type"`
	DatasetIDs      []string `json:"dataset_ids"`
	Limit           int      `json:"limit"`
	IncludeMetadata *bool    `json:"include_metadata"`
}

func (b *basicHandlers) Search(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in searchInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.SearchType == "" {
		in.SearchType = "graph_completion"
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}
	includeMetadata := in.IncludeMetadata == nil || *in.IncludeMetadata

	resp, err := b.client.Search(ctx, cognee.SearchRequest{
		Query:           in.Query,
		SearchType:      in.SearchType,
		DatasetIDs:      in.DatasetIDs,
		Limit:           in.Limit,
		IncludeMetadata: includeMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		row := map[string]any{
			"id":      r.ID,
			"content": r.Content,
			"score":   r.Score,
		}
		if includeMetadata {
			row["metadata"] = r.Metadata
			row["source"] = r.Source
		}
		results = append(results, row)
	}

	return respond(map[string]any{
		"query":       resp.Query,
		"search_type": in.SearchType,
		"total_count": resp.TotalCount,
		"results":     results,
	})
}

type statusInput struct {
	Detailed bool `json:"detailed"`
}

func (b *basicHandlers) Status(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in statusInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	if in.Detailed {
		detail, err := b.client.HealthDetailed(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching detailed health: %w", err)
		}
		return respond(detail)
	}

	health, err := b.client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching health: %w", err)
	}
	return respond(health)
}
