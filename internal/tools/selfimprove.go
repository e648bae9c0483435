// ABOUTME: Self-improvement pack mines the call history for performance and tuning signals.
// ABOUTME: Optimization actions default to dry-run; only history pruning mutates anything.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/cognee-mcp/internal/history"
	"github.com/2389/cognee-mcp/internal/registry"
)

// SelfImprovePack creates the self-improvement pack backed by the call history.
func SelfImprovePack(store *history.Store) *registry.Pack {
	s := &selfImproveHandlers{store: store}
	return &registry.Pack{
		ID: "selfimprove",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "performance_monitor",
					Description:     "Report per-tool latency, error rate, and alerts over a time window",
					Category:        "selfimprove",
					InputSchemaJSON: `{"type":"object","properties":{"metric_types":{"type":"array","items":{"type":"string"},"default":["query_performance","memory_usage","api_latency","error_rate"]},"time_window_hours":{"type":"integer","default":24},"alert_threshold":{"type":"number","default":0.8}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: s.PerformanceMonitor,
			},
			{
				Definition: registry.Definition{
					Name:            "auto_optimization",
					Description:     "Suggest (or apply) optimizations derived from call history",
					Category:        "selfimprove",
					InputSchemaJSON: `{"type":"object","properties":{"optimization_targets":{"type":"array","items":{"type":"string"},"default":["memory_cleanup","query_optimization","index_maintenance","cache_optimization"]},"dry_run":{"type":"boolean","default":true},"max_duration_minutes":{"type":"integer","default":30},"aggressiveness":{"type":"string","enum":["conservative","moderate","aggressive"],"default":"conservative"}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: s.AutoOptimization,
			},
			{
				Definition: registry.Definition{
					Name:            "learning_feedback",
					Description:     "Record quality feedback to bias future behavior",
					Category:        "selfimprove",
					InputSchemaJSON: `{"type":"object","properties":{"feedback_type":{"type":"string","enum":["search_relevance","memory_importance","response_quality","tool_effectiveness"]},"feedback_data":{"type":"object"},"auto_adjust":{"type":"boolean","default":false},"learning_rate":{"type":"number","default":0.1}},"required":["feedback_type"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: s.LearningFeedback,
			},
			{
				Definition: registry.Definition{
					Name:            "system_tuning",
					Description:     "Derive tuning recommendations from observed workload",
					Category:        "selfimprove",
					InputSchemaJSON: `{"type":"object","properties":{"tuning_mode":{"type":"string","enum":["performance","memory","accuracy","balanced"],"default":"balanced"},"target_metrics":{"type":"array","items":{"type":"string"}},"max_iterations":{"type":"integer","default":10},"convergence_threshold":{"type":"number","default":0.01}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: s.SystemTuning,
			},
		},
	}
}

type selfImproveHandlers struct {
	store *history.Store
}

type performanceMonitorInput struct {
	MetricTypes     []string `json:"metric_types"`
	TimeWindowHours int      `json:"time_window_hours"`
	AlertThreshold  float64  `json:"alert_threshold"`
}

func (s *selfImproveHandlers) PerformanceMonitor(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := performanceMonitorInput{AlertThreshold: 0.8}
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.TimeWindowHours <= 0 {
		in.TimeWindowHours = 24
	}
	if len(in.MetricTypes) == 0 {
		in.MetricTypes = []string{"query_performance", "memory_usage", "api_latency", "error_rate"}
	}

	since := time.Now().UTC().Add(-time.Duration(in.TimeWindowHours) * time.Hour)
	aggs, err := s.store.ToolAggregates(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating call history: %w", err)
	}

	var alerts []map[string]any
	metrics := make([]map[string]any, 0, len(aggs))
	for _, a := range aggs {
		errorRate := 0.0
		if a.Calls > 0 {
			errorRate = float64(a.Errors) / float64(a.Calls)
		}
		metrics = append(metrics, map[string]any{
			"tool":             a.Tool,
			"calls":            a.Calls,
			"errors":           a.Errors,
			"error_rate":       errorRate,
			"mean_duration_ms": a.MeanDurationMS,
			"last_called":      a.LastCalled,
		})
		if errorRate >= in.AlertThreshold {
			alerts = append(alerts, map[string]any{
				"tool":       a.Tool,
				"error_rate": errorRate,
				"message":    fmt.Sprintf("error rate %.0f%% exceeds threshold", errorRate*100),
			})
		}
	}

	return respond(map[string]any{
		"window_hours":    in.TimeWindowHours,
		"metric_types":    in.MetricTypes,
		"alert_threshold": in.AlertThreshold,
		"tools":           metrics,
		"alerts":          alerts,
	})
}

type autoOptimizationInput struct {
	OptimizationTargets []string `json:"optimization_targets"`
	DryRun              *bool    `json:"dry_run"`
	MaxDurationMinutes  int      `json:"max_duration_minutes"`
	Aggressiveness      string   `json:"aggressiveness"`
}

func (s *selfImproveHandlers) AutoOptimization(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in autoOptimizationInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	dryRun := in.DryRun == nil || *in.DryRun
	if in.MaxDurationMinutes <= 0 {
		in.MaxDurationMinutes = 30
	}
	if in.Aggressiveness == "" {
		in.Aggressiveness = "conservative"
	}
	if len(in.OptimizationTargets) == 0 {
		in.OptimizationTargets = []string{"memory_cleanup", "query_optimization", "index_maintenance", "cache_optimization"}
	}

	sum, err := s.store.Summarize(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarizing call history: %w", err)
	}

	// Retention shrinks with aggressiveness.
	retention := 30 * 24 * time.Hour
	switch in.Aggressiveness {
	case "moderate":
		retention = 14 * 24 * time.Hour
	case "aggressive":
		retention = 7 * 24 * time.Hour
	}

	var actions []map[string]any
	for _, target := range in.OptimizationTargets {
		switch target {
		case "memory_cleanup":
			action := map[string]any{
				"target":         target,
				"description":    fmt.Sprintf("prune call history older than %s", retention),
				"retention_days": int(retention.Hours() / 24),
			}
			if !dryRun {
				pruned, err := s.store.Prune(ctx, time.Now().UTC().Add(-retention))
				if err != nil {
					return nil, fmt.Errorf("pruning history: %w", err)
				}
				action["pruned_entries"] = pruned
				action["applied"] = true
			}
			actions = append(actions, action)
		case "query_optimization":
			aggs, err := s.store.ToolAggregates(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				return nil, fmt.Errorf("aggregating call history: %w", err)
			}
			var slow []string
			for _, a := range aggs {
				if a.MeanDurationMS > 5000 {
					slow = append(slow, a.Tool)
				}
			}
			actions = append(actions, map[string]any{
				"target":      target,
				"description": "tools averaging over 5s would benefit from narrower queries or lower limits",
				"slow_tools":  slow,
			})
		default:
			actions = append(actions, map[string]any{
				"target":      target,
				"description": "handled upstream; no local action",
			})
		}
	}

	return respond(map[string]any{
		"dry_run":        dryRun,
		"aggressiveness": in.Aggressiveness,
		"history_calls":  sum.TotalCalls,
		"history_errors": sum.TotalErrors,
		"actions":        actions,
	})
}

type learningFeedbackInput struct {
	FeedbackType string         `json:"feedback_type"`
	FeedbackData map[string]any `json:"feedback_data"`
	AutoAdjust   bool           `json:"auto_adjust"`
	LearningRate float64        `json:"learning_rate"`
}

func (s *selfImproveHandlers) LearningFeedback(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := learningFeedbackInput{LearningRate: 0.1}
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	entry := &history.Entry{
		Tool:     "learning_feedback",
		Category: "selfimprove",
		OK:       true,
		Detail: map[string]any{
			"feedback_type": in.FeedbackType,
			"feedback_data": in.FeedbackData,
			"auto_adjust":   in.AutoAdjust,
			"learning_rate": in.LearningRate,
		},
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("recording feedback: %w", err)
	}

	// Count prior feedback of the same type to show accumulation.
	prior, err := s.store.List(ctx, history.Filter{
		Tool:    "learning_feedback",
		Keyword: in.FeedbackType,
		Limit:   1000,
	})
	if err != nil {
		return nil, fmt.Errorf("counting prior feedback: %w", err)
	}

	return respond(map[string]any{
		"status":        "recorded",
		"feedback_id":   entry.ID,
		"feedback_type": in.FeedbackType,
		"auto_adjust":   in.AutoAdjust,
		"learning_rate": in.LearningRate,
		"total_of_type": len(prior),
	})
}

type systemTuningInput struct {
	TuningMode           string   `json:"tuning_mode"`
	TargetMetrics        []string `json:"target_metrics"`
	MaxIterations        int      `json:"max_iterations"`
	ConvergenceThreshold float64  `json:"convergence_threshold"`
}

func (s *selfImproveHandlers) SystemTuning(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := systemTuningInput{ConvergenceThreshold: 0.01}
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.TuningMode == "" {
		in.TuningMode = "balanced"
	}
	if in.MaxIterations <= 0 {
		in.MaxIterations = 10
	}

	aggs, err := s.store.ToolAggregates(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("aggregating call history: %w", err)
	}

	var totalCalls, totalErrors int64
	var weightedLatency float64
	for _, a := range aggs {
		totalCalls += a.Calls
		totalErrors += a.Errors
		weightedLatency += a.MeanDurationMS * float64(a.Calls)
	}
	meanLatency := 0.0
	errorRate := 0.0
	if totalCalls > 0 {
		meanLatency = weightedLatency / float64(totalCalls)
		errorRate = float64(totalErrors) / float64(totalCalls)
	}

	var recommendations []string
	switch in.TuningMode {
	case "performance":
		if meanLatency > 2000 {
			recommendations = append(recommendations, "lower per-tool timeouts and search limits; mean latency exceeds 2s")
		}
		recommendations = append(recommendations, "raise max_concurrent_requests if the upstream tolerates it")
	case "memory":
		recommendations = append(recommendations, "reduce history.max_rows and run memory_consolidation with expired_cleanup")
	case "accuracy":
		recommendations = append(recommendations, "prefer graph_completion search with higher limits; raise retry budget")
	default:
		if errorRate > 0.1 {
			recommendations = append(recommendations, "error rate above 10%: check credentials and upstream health before tuning throughput")
		}
		if meanLatency > 5000 {
			recommendations = append(recommendations, "mean latency above 5s: consider run_in_background for cognify")
		}
		if len(recommendations) == 0 {
			recommendations = append(recommendations, "workload within normal bounds; no changes recommended")
		}
	}

	return respond(map[string]any{
		"tuning_mode":       in.TuningMode,
		"window_days":       7,
		"observed_calls":    totalCalls,
		"observed_errors":   totalErrors,
		"mean_latency_ms":   meanLatency,
		"error_rate":        errorRate,
		"recommendations":   recommendations,
		"max_iterations":    in.MaxIterations,
		"convergence_delta": in.ConvergenceThreshold,
	})
}
