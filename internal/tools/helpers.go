// ABOUTME: Shared helpers for tool handlers.
// ABOUTME: Input decoding, JSON responses, and default dataset resolution.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/cognee-mcp/internal/cognee"
)

// decode unmarshals tool arguments into a typed input struct.
func decode(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return nil
}

// respond marshals a handler result into the raw JSON the dispatcher renders.
func respond(v any) (json.RawMessage, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return raw, nil
}

// defaultDataset resolves a dataset id, falling back to the first dataset
// visible upstream when none was given.
func defaultDataset(ctx context.Context, client *cognee.Client, datasetID string) (string, bool, error) {
	if datasetID != "" {
		return datasetID, false, nil
	}
	datasets, err := client.ListDatasets(ctx)
	if err != nil {
		return "", false, fmt.Errorf("resolving default dataset: %w", err)
	}
	if len(datasets) == 0 {
		return "", false, errors.New("no datasets exist; ingest data first")
	}
	return datasets[0].ID, true, nil
}
