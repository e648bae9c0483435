// ABOUTME: Memory pack persists typed memories in a dataset's conversational memory.
// ABOUTME: Records are JSON envelopes so retrieval can filter on type, importance, and expiry.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/registry"
)

// MemoryPack creates the async-memory pack. Memory contexts map onto
// datasets: an empty context_id addresses the first dataset.
func MemoryPack(client *cognee.Client) *registry.Pack {
	m := &memoryHandlers{client: client}
	return &registry.Pack{
		ID: "memory",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "memory_store",
					Description:     "Store a typed memory with importance and retention",
					Category:        "memory",
					InputSchemaJSON: `{"type":"object","properties":{"memory_content":{"type":"string"},"memory_type":{"type":"string","enum":["episodic","semantic","procedural","context"],"default":"episodic"},"importance_score":{"type":"number","default":0.5},"tags":{"type":"array","items":{"type":"string"}},"context_id":{"type":"string"},"retention_days":{"type":"integer","default":30}},"required":["memory_content"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: m.Store,
			},
			{
				Definition: registry.Definition{
					Name:            "memory_retrieve",
					Description:     "Retrieve stored memories matching a query",
					Category:        "memory",
					InputSchemaJSON: `{"type":"object","properties":{"query":{"type":"string"},"memory_types":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer","default":10},"min_importance":{"type":"number","default":0},"include_expired":{"type":"boolean","default":false},"context_id":{"type":"string"}},"required":["query"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: m.Retrieve,
			},
			{
				Definition: registry.Definition{
					Name:            "memory_update",
					Description:     "Adjust a stored memory's importance, tags, or retention",
					Category:        "memory",
					InputSchemaJSON: `{"type":"object","properties":{"memory_id":{"type":"string","description":"Index of the memory entry"},"new_content":{"type":"string"},"importance_adjustment":{"type":"number"},"add_tags":{"type":"array","items":{"type":"string"}},"remove_tags":{"type":"array","items":{"type":"string"}},"extend_retention_days":{"type":"integer"},"context_id":{"type":"string"}},"required":["memory_id"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: m.Update,
			},
			{
				Definition: registry.Definition{
					Name:            "context_manager",
					Description:     "Create, inspect, or close memory contexts",
					Category:        "memory",
					InputSchemaJSON: `{"type":"object","properties":{"action":{"type":"string","enum":["create","update","get","close","list"]},"context_id":{"type":"string"},"context_type":{"type":"string","enum":["conversation","task","session","project"],"default":"conversation"},"metadata":{"type":"object"}},"required":["action"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: m.ContextManager,
			},
			{
				Definition: registry.Definition{
					Name:            "memory_consolidation",
					Description:     "Analyze and consolidate stored memories: expiry, duplicates, importance, clustering",
					Category:        "memory",
					InputSchemaJSON: `{"type":"object","properties":{"consolidation_type":{"type":"string","enum":["expired_cleanup","duplicate_merge","importance_rebalance","context_clustering"],"default":"expired_cleanup"},"dry_run":{"type":"boolean","default":true},"batch_size":{"type":"integer","default":100},"context_id":{"type":"string"}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: m.Consolidation,
			},
		},
	}
}

type memoryHandlers struct {
	client *cognee.Client
}

// memoryRecord is the JSON envelope stored as memory entry content.
type memoryRecord struct {
	Content       string   `json:"content"`
	Type          string   `json:"type"`
	Importance    float64  `json:"importance"`
	Tags          []string `json:"tags,omitempty"`
	StoredAt      string   `json:"stored_at"`
	RetentionDays int      `json:"retention_days"`
}

// parseRecord decodes a memory entry envelope; plain-text entries become
// episodic records with default importance.
func parseRecord(item cognee.MemoryItem) memoryRecord {
	var rec memoryRecord
	if err := json.Unmarshal([]byte(item.Content), &rec); err == nil && rec.Content != "" {
		if rec.Type == "" {
			rec.Type = item.Role
		}
		return rec
	}
	return memoryRecord{
		Content:    item.Content,
		Type:       item.Role,
		Importance: 0.5,
		StoredAt:   item.Timestamp.UTC().Format(time.RFC3339),
	}
}

func (r memoryRecord) expired(now time.Time) bool {
	if r.RetentionDays <= 0 || r.StoredAt == "" {
		return false
	}
	stored, err := time.Parse(time.RFC3339, r.StoredAt)
	if err != nil {
		return false
	}
	return now.After(stored.AddDate(0, 0, r.RetentionDays))
}

type memoryStoreInput struct {
	MemoryContent   string   `json:"memory_content"`
	MemoryType      string   `json:"memory_type"`
	ImportanceScore *float64 `json:"importance_score"`
	Tags            []string `json:"tags"`
	ContextID       string   `json:"context_id"`
	RetentionDays   int      `json:"retention_days"`
}

func (m *memoryHandlers) Store(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in memoryStoreInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.MemoryType == "" {
		in.MemoryType = "episodic"
	}
	importance := 0.5
	if in.ImportanceScore != nil {
		importance = *in.ImportanceScore
	}
	if importance < 0 || importance > 1 {
		return nil, fmt.Errorf("importance_score %v out of range [0,1]", importance)
	}
	if in.RetentionDays <= 0 {
		in.RetentionDays = 30
	}

	datasetID, defaulted, err := defaultDataset(ctx, m.client, in.ContextID)
	if err != nil {
		return nil, err
	}

	rec := memoryRecord{
		Content:       in.MemoryContent,
		Type:          in.MemoryType,
		Importance:    importance,
		Tags:          in.Tags,
		StoredAt:      time.Now().UTC().Format(time.RFC3339),
		RetentionDays: in.RetentionDays,
	}
	envelope, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding memory record: %w", err)
	}

	if _, err := m.client.MemoryAppend(ctx, datasetID, in.MemoryType, string(envelope)); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}

	return respond(map[string]any{
		"status":            "stored",
		"context_id":        datasetID,
		"context_defaulted": defaulted,
		"memory_type":       in.MemoryType,
		"importance":        importance,
		"retention_days":    in.RetentionDays,
	})
}

type memoryRetrieveInput struct {
	Query          string   `json:"query"`
	MemoryTypes    []string `json:"memory_types"`
	Limit          int      `json:"limit"`
	MinImportance  float64  `json:"min_importance"`
	IncludeExpired bool     `json:"include_expired"`
	ContextID      string   `json:"context_id"`
}

func (m *memoryHandlers) Retrieve(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in memoryRetrieveInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}

	datasetID, defaulted, err := defaultDataset(ctx, m.client, in.ContextID)
	if err != nil {
		return nil, err
	}

	items, err := m.client.MemoryList(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("listing memory: %w", err)
	}

	typeFilter := make(map[string]bool, len(in.MemoryTypes))
	for _, t := range in.MemoryTypes {
		typeFilter[t] = true
	}

	now := time.Now().UTC()
	query := strings.ToLower(in.Query)
	var matches []map[string]any
	for idx, item := range items {
		rec := parseRecord(item)
		if len(typeFilter) > 0 && !typeFilter[rec.Type] {
			continue
		}
		if rec.Importance < in.MinImportance {
			continue
		}
		if !in.IncludeExpired && rec.expired(now) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(rec.Content), query) {
			continue
		}
		matches = append(matches, map[string]any{
			"memory_id":  strconv.Itoa(idx),
			"content":    rec.Content,
			"type":       rec.Type,
			"importance": rec.Importance,
			"tags":       rec.Tags,
			"stored_at":  rec.StoredAt,
		})
		if len(matches) >= in.Limit {
			break
		}
	}

	return respond(map[string]any{
		"query":             in.Query,
		"context_id":        datasetID,
		"context_defaulted": defaulted,
		"total_entries":     len(items),
		"matches":           matches,
	})
}

type memoryUpdateInput struct {
	MemoryID             string   `json:"memory_id"`
	NewContent           string   `json:"new_content"`
	ImportanceAdjustment float64  `json:"importance_adjustment"`
	AddTags              []string `json:"add_tags"`
	RemoveTags           []string `json:"remove_tags"`
	ExtendRetentionDays  int      `json:"extend_retention_days"`
	ContextID            string   `json:"context_id"`
}

func (m *memoryHandlers) Update(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in memoryUpdateInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.ImportanceAdjustment < -1 || in.ImportanceAdjustment > 1 {
		return nil, fmt.Errorf("importance_adjustment %v out of range [-1,1]", in.ImportanceAdjustment)
	}

	index, err := strconv.Atoi(in.MemoryID)
	if err != nil {
		return nil, fmt.Errorf("memory_id must be a numeric index: %w", err)
	}

	datasetID, defaulted, err := defaultDataset(ctx, m.client, in.ContextID)
	if err != nil {
		return nil, err
	}

	items, err := m.client.MemoryList(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("listing memory: %w", err)
	}
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("memory_id %d out of range (have %d entries)", index, len(items))
	}

	rec := parseRecord(items[index])
	if in.NewContent != "" {
		rec.Content = in.NewContent
	}
	rec.Importance = clamp01(rec.Importance + in.ImportanceAdjustment)
	rec.Tags = adjustTags(rec.Tags, in.AddTags, in.RemoveTags)
	if in.ExtendRetentionDays > 0 {
		rec.RetentionDays += in.ExtendRetentionDays
	}

	// The upstream memory log is append-only; feedback carries the adjustment.
	note, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding updated record: %w", err)
	}
	if _, err := m.client.MemoryFeedback(ctx, datasetID, cognee.MemoryFeedbackRequest{
		MemoryIndex: index,
		Score:       rec.Importance,
		Note:        string(note),
	}); err != nil {
		return nil, fmt.Errorf("applying memory update: %w", err)
	}

	return respond(map[string]any{
		"status":            "updated",
		"memory_id":         in.MemoryID,
		"context_id":        datasetID,
		"context_defaulted": defaulted,
		"importance":        rec.Importance,
		"tags":              rec.Tags,
		"retention_days":    rec.RetentionDays,
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func adjustTags(tags, add, remove []string) []string {
	set := make(map[string]bool, len(tags)+len(add))
	for _, t := range tags {
		set[t] = true
	}
	for _, t := range add {
		set[t] = true
	}
	for _, t := range remove {
		delete(set, t)
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type contextManagerInput struct {
	Action      string         `json:"action"`
	ContextID   string         `json:"context_id"`
	ContextType string         `json:"context_type"`
	Metadata    map[string]any `json:"metadata"`
}

func (m *memoryHandlers) ContextManager(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in contextManagerInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.ContextType == "" {
		in.ContextType = "conversation"
	}

	switch in.Action {
	case "list":
		datasets, err := m.client.ListDatasets(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing contexts: %w", err)
		}
		contexts := make([]map[string]any, 0, len(datasets))
		for _, ds := range datasets {
			contexts = append(contexts, map[string]any{
				"context_id": ds.ID,
				"name":       ds.Name,
				"data_count": ds.DataCount,
				"updated_at": ds.UpdatedAt,
			})
		}
		return respond(map[string]any{"contexts": contexts})

	case "get":
		if in.ContextID == "" {
			return nil, fmt.Errorf("context_id is required for action %q", in.Action)
		}
		ds, err := m.client.GetDataset(ctx, in.ContextID)
		if err != nil {
			return nil, fmt.Errorf("fetching context: %w", err)
		}
		items, err := m.client.MemoryList(ctx, in.ContextID)
		if err != nil {
			return nil, fmt.Errorf("listing context memory: %w", err)
		}
		return respond(map[string]any{
			"context_id":   ds.ID,
			"name":         ds.Name,
			"data_count":   ds.DataCount,
			"memory_count": len(items),
			"updated_at":   ds.UpdatedAt,
		})

	case "create":
		if in.ContextID == "" {
			return nil, fmt.Errorf("context_id is required for action %q", in.Action)
		}
		marker, err := json.Marshal(map[string]any{
			"event":        "context_created",
			"context_type": in.ContextType,
			"metadata":     in.Metadata,
			"created_at":   time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("encoding context marker: %w", err)
		}
		// Ingesting the marker creates the backing dataset if needed.
		resp, err := m.client.AddData(ctx, cognee.AddDataRequest{
			Data:        []string{string(marker)},
			DatasetName: in.ContextID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating context: %w", err)
		}
		return respond(map[string]any{
			"status":       "created",
			"context_id":   in.ContextID,
			"dataset_id":   resp.DatasetID,
			"context_type": in.ContextType,
		})

	case "update", "close":
		if in.ContextID == "" {
			return nil, fmt.Errorf("context_id is required for action %q", in.Action)
		}
		marker, err := json.Marshal(map[string]any{
			"event":        "context_" + in.Action,
			"context_type": in.ContextType,
			"metadata":     in.Metadata,
			"at":           time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("encoding context marker: %w", err)
		}
		if _, err := m.client.MemoryAppend(ctx, in.ContextID, "context", string(marker)); err != nil {
			return nil, fmt.Errorf("recording context %s: %w", in.Action, err)
		}
		return respond(map[string]any{
			"status":     in.Action + "d",
			"context_id": in.ContextID,
		})

	default:
		return nil, fmt.Errorf("unknown action %q", in.Action)
	}
}

type consolidationInput struct {
	ConsolidationType string `json:"consolidation_type"`
	DryRun            *bool  `json:"dry_run"`
	BatchSize         int    `json:"batch_size"`
	ContextID         string `json:"context_id"`
}

func (m *memoryHandlers) Consolidation(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in consolidationInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.ConsolidationType == "" {
		in.ConsolidationType = "expired_cleanup"
	}
	dryRun := in.DryRun == nil || *in.DryRun
	if in.BatchSize <= 0 {
		in.BatchSize = 100
	}

	datasetID, defaulted, err := defaultDataset(ctx, m.client, in.ContextID)
	if err != nil {
		return nil, err
	}

	items, err := m.client.MemoryList(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("listing memory: %w", err)
	}
	if len(items) > in.BatchSize {
		items = items[:in.BatchSize]
	}

	out := map[string]any{
		"consolidation_type": in.ConsolidationType,
		"context_id":         datasetID,
		"context_defaulted":  defaulted,
		"dry_run":            dryRun,
		"entries_examined":   len(items),
	}

	now := time.Now().UTC()
	switch in.ConsolidationType {
	case "expired_cleanup":
		expired := 0
		for _, item := range items {
			if parseRecord(item).expired(now) {
				expired++
			}
		}
		out["expired_entries"] = expired
		if !dryRun && expired == len(items) && expired > 0 {
			if _, err := m.client.MemoryClear(ctx, datasetID); err != nil {
				return nil, fmt.Errorf("clearing expired memory: %w", err)
			}
			out["cleared"] = true
		} else if !dryRun && expired > 0 {
			out["note"] = "upstream supports full clear only; partial expiry left in place"
		}

	case "duplicate_merge":
		seen := make(map[string][]int)
		for idx, item := range items {
			key := parseRecord(item).Content
			seen[key] = append(seen[key], idx)
		}
		var duplicates [][]int
		for _, idxs := range seen {
			if len(idxs) > 1 {
				duplicates = append(duplicates, idxs)
			}
		}
		out["duplicate_groups"] = duplicates
		if !dryRun {
			// Down-score every duplicate after the first occurrence.
			for _, group := range duplicates {
				for _, idx := range group[1:] {
					if _, err := m.client.MemoryFeedback(ctx, datasetID, cognee.MemoryFeedbackRequest{
						MemoryIndex: idx,
						Score:       0,
						Note:        "duplicate of earlier entry",
					}); err != nil {
						return nil, fmt.Errorf("down-scoring duplicate %d: %w", idx, err)
					}
				}
			}
			out["down_scored"] = true
		}

	case "importance_rebalance":
		var total float64
		for _, item := range items {
			total += parseRecord(item).Importance
		}
		mean := 0.0
		if len(items) > 0 {
			mean = total / float64(len(items))
		}
		out["mean_importance"] = mean
		if !dryRun {
			for idx, item := range items {
				rec := parseRecord(item)
				rebalanced := clamp01(rec.Importance + (0.5-mean)*0.5)
				if _, err := m.client.MemoryFeedback(ctx, datasetID, cognee.MemoryFeedbackRequest{
					MemoryIndex: idx,
					Score:       rebalanced,
					Note:        "importance rebalance",
				}); err != nil {
					return nil, fmt.Errorf("rebalancing entry %d: %w", idx, err)
				}
			}
			out["rebalanced"] = true
		}

	case "context_clustering":
		clusters := make(map[string]int)
		for _, item := range items {
			clusters[parseRecord(item).Type]++
		}
		out["clusters_by_type"] = clusters

	default:
		return nil, fmt.Errorf("unknown consolidation_type %q", in.ConsolidationType)
	}

	return respond(out)
}
