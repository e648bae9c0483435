// ABOUTME: Temporal pack analyzes time-bucketed graph activity.
// ABOUTME: Windows, timelines, pattern detection, and event sequence traversal.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/registry"
)

// TemporalPack creates the time-awareness pack.
func TemporalPack(client *cognee.Client) *registry.Pack {
	t := &temporalHandlers{client: client}
	return &registry.Pack{
		ID: "temporal",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "time_window_query",
					Description:     "Query graph activity inside a time window",
					Category:        "temporal",
					InputSchemaJSON: `{"type":"object","properties":{"start_time":{"type":"string","description":"RFC3339 window start"},"end_time":{"type":"string","description":"RFC3339 window end"},"query":{"type":"string","description":"Optional search query scoped to the window"},"limit":{"type":"integer","default":50}},"required":["start_time","end_time"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: t.TimeWindowQuery,
			},
			{
				Definition: registry.Definition{
					Name:            "timeline_reconstruct",
					Description:     "Reconstruct a timeline of graph activity around an entity",
					Category:        "temporal",
					InputSchemaJSON: `{"type":"object","properties":{"entity_id":{"type":"string"},"granularity":{"type":"string","enum":["hour","day","week","month"],"default":"day"},"max_events":{"type":"integer","default":100}},"required":["entity_id"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: t.TimelineReconstruct,
			},
			{
				Definition: registry.Definition{
					Name:            "temporal_pattern_analysis",
					Description:     "Detect frequency, sequence, cluster, or anomaly patterns in graph activity",
					Category:        "temporal",
					InputSchemaJSON: `{"type":"object","properties":{"pattern_type":{"type":"string","enum":["frequency","sequence","cluster","anomaly"],"default":"frequency"},"time_unit":{"type":"string","default":"day"},"lookback_days":{"type":"integer","default":30}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: t.PatternAnalysis,
			},
			{
				Definition: registry.Definition{
					Name:            "event_sequence_analysis",
					Description:     "Trace event chains forward or backward from a seed event",
					Category:        "temporal",
					InputSchemaJSON: `{"type":"object","properties":{"seed_event":{"type":"string"},"max_depth":{"type":"integer","default":5},"time_window_hours":{"type":"integer","default":24},"direction":{"type":"string","enum":["forward","backward","both"],"default":"forward"}},"required":["seed_event"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: t.EventSequence,
			},
		},
	}
}

type temporalHandlers struct {
	client *cognee.Client
}

type timeWindowInput struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
}

func (t *temporalHandlers) TimeWindowQuery(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in timeWindowInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 50
	}

	start, err := time.Parse(time.RFC3339, in.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, in.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parsing end_time: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end_time %s is not after start_time %s", in.EndTime, in.StartTime)
	}

	datasetID, defaulted, err := defaultDataset(ctx, t.client, "")
	if err != nil {
		return nil, err
	}

	metrics, err := t.client.GraphMetricsTime(ctx, datasetID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching time metrics: %w", err)
	}

	out := map[string]any{
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"window_start":      start.UTC(),
		"window_end":        end.UTC(),
		"buckets":           metrics.Series,
	}

	if in.Query != "" {
		search, err := t.client.Search(ctx, cognee.SearchRequest{
			Query:      in.Query,
			SearchType: "chunks",
			DatasetIDs: []string{datasetID},
			Limit:      in.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("searching window: %w", err)
		}
		out["query"] = in.Query
		out["matches"] = search.Results
	}

	return respond(out)
}

type timelineInput struct {
	EntityID    string `json:"entity_id"`
	Granularity string `json:"granularity"`
	MaxEvents   int    `json:"max_events"`
}

func granularityDuration(g string) time.Duration {
	switch g {
	case "hour":
		return time.Hour
	case "week":
		return 7 * 24 * time.Hour
	case "month":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (t *temporalHandlers) TimelineReconstruct(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in timelineInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Granularity == "" {
		in.Granularity = "day"
	}
	if in.MaxEvents <= 0 {
		in.MaxEvents = 100
	}

	datasetID, defaulted, err := defaultDataset(ctx, t.client, "")
	if err != nil {
		return nil, err
	}

	search, err := t.client.Search(ctx, cognee.SearchRequest{
		Query:      in.EntityID,
		SearchType: "chunks",
		DatasetIDs: []string{datasetID},
		Limit:      in.MaxEvents,
	})
	if err != nil {
		return nil, fmt.Errorf("searching entity: %w", err)
	}

	metrics, err := t.client.GraphMetricsTime(ctx, datasetID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("fetching time metrics: %w", err)
	}

	// Bucket the activity series by the requested granularity.
	bucket := granularityDuration(in.Granularity)
	buckets := make(map[time.Time]*cognee.TimePoint)
	var order []time.Time
	for _, p := range metrics.Series {
		key := p.Timestamp.UTC().Truncate(bucket)
		agg, ok := buckets[key]
		if !ok {
			agg = &cognee.TimePoint{Timestamp: key}
			buckets[key] = agg
			order = append(order, key)
		}
		agg.NodeCount += p.NodeCount
		agg.EdgeCount += p.EdgeCount
		agg.EventCount += p.EventCount
	}

	timeline := make([]cognee.TimePoint, 0, len(order))
	for _, key := range order {
		timeline = append(timeline, *buckets[key])
	}

	return respond(map[string]any{
		"entity_id":         in.EntityID,
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"granularity":       in.Granularity,
		"related_mentions":  search.Results,
		"timeline":          timeline,
	})
}

type patternInput struct {
	PatternType  string `json:"pattern_type"`
	TimeUnit     string `json:"time_unit"`
	LookbackDays int    `json:"lookback_days"`
}

func (t *temporalHandlers) PatternAnalysis(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in patternInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.PatternType == "" {
		in.PatternType = "frequency"
	}
	if in.TimeUnit == "" {
		in.TimeUnit = "day"
	}
	if in.LookbackDays <= 0 {
		in.LookbackDays = 30
	}

	datasetID, defaulted, err := defaultDataset(ctx, t.client, "")
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -in.LookbackDays)
	metrics, err := t.client.GraphMetricsTime(ctx, datasetID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching time metrics: %w", err)
	}

	counts := make([]float64, 0, len(metrics.Series))
	for _, p := range metrics.Series {
		counts = append(counts, float64(p.EventCount))
	}
	mean, stddev := meanStddev(counts)

	out := map[string]any{
		"pattern_type":      in.PatternType,
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"lookback_days":     in.LookbackDays,
		"buckets_analyzed":  len(metrics.Series),
		"mean_events":       mean,
		"stddev_events":     stddev,
	}

	switch in.PatternType {
	case "frequency":
		peaks := make([]cognee.TimePoint, 0)
		for _, p := range metrics.Series {
			if float64(p.EventCount) > mean {
				peaks = append(peaks, p)
			}
		}
		out["above_mean_buckets"] = peaks
	case "anomaly":
		anomalies := make([]cognee.TimePoint, 0)
		for _, p := range metrics.Series {
			if stddev > 0 && math.Abs(float64(p.EventCount)-mean) > 2*stddev {
				anomalies = append(anomalies, p)
			}
		}
		out["anomalies"] = anomalies
	case "cluster":
		// Consecutive active buckets form a cluster.
		var clusters [][]cognee.TimePoint
		var current []cognee.TimePoint
		for _, p := range metrics.Series {
			if p.EventCount > 0 {
				current = append(current, p)
				continue
			}
			if len(current) > 1 {
				clusters = append(clusters, current)
			}
			current = nil
		}
		if len(current) > 1 {
			clusters = append(clusters, current)
		}
		out["clusters"] = clusters
	case "sequence":
		var rising, falling int
		for i := 1; i < len(metrics.Series); i++ {
			switch {
			case metrics.Series[i].EventCount > metrics.Series[i-1].EventCount:
				rising++
			case metrics.Series[i].EventCount < metrics.Series[i-1].EventCount:
				falling++
			}
		}
		out["rising_transitions"] = rising
		out["falling_transitions"] = falling
	}

	return respond(out)
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

type eventSequenceInput struct {
	SeedEvent       string `json:"seed_event"`
	MaxDepth        int    `json:"max_depth"`
	TimeWindowHours int    `json:"time_window_hours"`
	Direction       string `json:"direction"`
}

func (t *temporalHandlers) EventSequence(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in eventSequenceInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.MaxDepth <= 0 {
		in.MaxDepth = 5
	}
	if in.TimeWindowHours <= 0 {
		in.TimeWindowHours = 24
	}
	if in.Direction == "" {
		in.Direction = "forward"
	}

	datasetID, defaulted, err := defaultDataset(ctx, t.client, "")
	if err != nil {
		return nil, err
	}

	// The window rides in the query: only events within time_window_hours
	// of the seed's timestamp are traced.
	var pattern string
	switch in.Direction {
	case "backward":
		pattern = fmt.Sprintf(
			"MATCH path=(seed {id: '%s'})<-[*1..%d]-(event) WHERE event.timestamp < seed.timestamp AND duration.inHours(event.timestamp, seed.timestamp).hours <= %d RETURN path",
			in.SeedEvent, in.MaxDepth, in.TimeWindowHours)
	case "both":
		pattern = fmt.Sprintf(
			"MATCH path=(seed {id: '%s'})-[*1..%d]-(event) WHERE abs(duration.inHours(seed.timestamp, event.timestamp).hours) <= %d RETURN path",
			in.SeedEvent, in.MaxDepth, in.TimeWindowHours)
	default:
		pattern = fmt.Sprintf(
			"MATCH path=(seed {id: '%s'})-[*1..%d]->(event) WHERE event.timestamp > seed.timestamp AND duration.inHours(seed.timestamp, event.timestamp).hours <= %d RETURN path",
			in.SeedEvent, in.MaxDepth, in.TimeWindowHours)
	}

	resp, err := t.client.GraphQuery(ctx, datasetID, pattern)
	if err != nil {
		return nil, fmt.Errorf("tracing event sequence: %w", err)
	}

	return respond(map[string]any{
		"seed_event":        in.SeedEvent,
		"direction":         in.Direction,
		"max_depth":         in.MaxDepth,
		"time_window_hours": in.TimeWindowHours,
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"path_count":        len(resp.Results),
		"paths":             resp.Results,
	})
}
