// ABOUTME: Dataset pack manages upstream datasets: list, get, delete, stats.
// ABOUTME: Deletion demands an explicit confirm flag.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/registry"
)

// DatasetPack creates the dataset management pack.
func DatasetPack(client *cognee.Client) *registry.Pack {
	d := &datasetHandlers{client: client}
	return &registry.Pack{
		ID: "dataset",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "datasets_list",
					Description:     "List all datasets",
					Category:        "dataset",
					InputSchemaJSON: `{"type":"object","properties":{"include_empty":{"type":"boolean","default":true}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: d.List,
			},
			{
				Definition: registry.Definition{
					Name:            "dataset_get",
					Description:     "Get details for one dataset",
					Category:        "dataset",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"}},"required":["dataset_id"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: d.Get,
			},
			{
				Definition: registry.Definition{
					Name:            "dataset_delete",
					Description:     "Delete a dataset and its graph. Requires confirm=true.",
					Category:        "dataset",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"},"confirm":{"type":"boolean","description":"Must be true to actually delete"}},"required":["dataset_id","confirm"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: d.Delete,
			},
			{
				Definition: registry.Definition{
					Name:            "dataset_stats",
					Description:     "Graph statistics for one dataset, or aggregated across all when dataset_id is omitted",
					Category:        "dataset",
					InputSchemaJSON: `{"type":"object","properties":{"dataset_id":{"type":"string"}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: d.Stats,
			},
		},
	}
}

type datasetHandlers struct {
	client *cognee.Client
}

type datasetsListInput struct {
	IncludeEmpty *bool `json:"include_empty"`
}

func (d *datasetHandlers) List(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in datasetsListInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	includeEmpty := in.IncludeEmpty == nil || *in.IncludeEmpty

	datasets, err := d.client.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}

	out := make([]cognee.Dataset, 0, len(datasets))
	for _, ds := range datasets {
		if !includeEmpty && ds.DataCount == 0 {
			continue
		}
		out = append(out, ds)
	}

	return respond(map[string]any{
		"total":    len(out),
		"datasets": out,
	})
}

type datasetGetInput struct {
	DatasetID string `json:"dataset_id"`
}

func (d *datasetHandlers) Get(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in datasetGetInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	ds, err := d.client.GetDataset(ctx, in.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("fetching dataset %s: %w", in.DatasetID, err)
	}
	return respond(ds)
}

type datasetDeleteInput struct {
	DatasetID string `json:"dataset_id"`
	Confirm   bool   `json:"confirm"`
}

func (d *datasetHandlers) Delete(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in datasetDeleteInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if !in.Confirm {
		return nil, errors.New("refusing to delete: confirm must be true")
	}

	if err := d.client.DeleteDataset(ctx, in.DatasetID); err != nil {
		return nil, fmt.Errorf("deleting dataset %s: %w", in.DatasetID, err)
	}

	return respond(map[string]any{
		"status":     "deleted",
		"dataset_id": in.DatasetID,
	})
}

type datasetStatsInput struct {
	DatasetID string `json:"dataset_id"`
}

func (d *datasetHandlers) Stats(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in datasetStatsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	if in.DatasetID != "" {
		stats, err := d.client.GraphStats(ctx, in.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("fetching graph stats: %w", err)
		}
		return respond(stats)
	}

	// No id: aggregate across every dataset.
	datasets, err := d.client.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}

	total := cognee.GraphStats{}
	perDataset := make([]map[string]any, 0, len(datasets))
	for _, ds := range datasets {
		stats, err := d.client.GraphStats(ctx, ds.ID)
		if err != nil {
			perDataset = append(perDataset, map[string]any{
				"dataset_id": ds.ID,
				"name":       ds.Name,
				"error":      err.Error(),
			})
			continue
		}
		total.NodeCount += stats.NodeCount
		total.EdgeCount += stats.EdgeCount
		perDataset = append(perDataset, map[string]any{
			"dataset_id": ds.ID,
			"name":       ds.Name,
			"node_count": stats.NodeCount,
			"edge_count": stats.EdgeCount,
		})
	}

	return respond(map[string]any{
		"datasets":         len(datasets),
		"total_node_count": total.NodeCount,
		"total_edge_count": total.EdgeCount,
		"per_dataset":      perDataset,
	})
}
