// ABOUTME: Diagnostic pack checks server health and mines errors and call logs.
// ABOUTME: The analysis tools are registered only with advanced analytics enabled.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/history"
	"github.com/2389/cognee-mcp/internal/mcperr"
	"github.com/2389/cognee-mcp/internal/registry"
)

// DiagnosticDeps carries everything the diagnostic tools inspect.
type DiagnosticDeps struct {
	Client          *cognee.Client
	History         *history.Store
	Tracker         *mcperr.Tracker
	Config          map[string]any
	Started         time.Time
	IncludeAdvanced bool
}

// DiagnosticPack creates the diagnostics pack. Error and log analysis are
// included only when advanced analytics is on.
func DiagnosticPack(deps DiagnosticDeps) *registry.Pack {
	d := &diagnosticHandlers{deps: deps}
	tools := []*registry.Tool{
		{
			Definition: registry.Definition{
				Name:            "health_check",
				Description:     "Run health checks across connectivity, database, memory, performance, and configuration",
				Category:        "diagnostic",
				InputSchemaJSON: `{"type":"object","properties":{"check_categories":{"type":"array","items":{"type":"string"},"default":["connectivity","database","memory","performance","configuration"]},"include_detailed_report":{"type":"boolean","default":false},"timeout_seconds":{"type":"integer","default":30}}}`,
				RequiresAuth:    false,
				RateLimitPerMin: 120,
				Timeout:         60 * time.Second,
				Enabled:         true,
			},
			Handler: d.HealthCheck,
		},
		{
			Definition: registry.Definition{
				Name:            "connectivity_test",
				Description:     "Probe upstream endpoints and measure latency",
				Category:        "diagnostic",
				InputSchemaJSON: `{"type":"object","properties":{"test_targets":{"type":"array","items":{"type":"string"},"default":["api_server","database","cache","external_services"]},"test_depth":{"type":"string","enum":["basic","comprehensive","stress"],"default":"basic"},"timeout_per_test":{"type":"integer","default":10},"include_latency_test":{"type":"boolean","default":true},"concurrent_tests":{"type":"boolean","default":false}}}`,
				RequiresAuth:    false,
				RateLimitPerMin: 60,
				Timeout:         60 * time.Second,
				Enabled:         true,
			},
			Handler: d.ConnectivityTest,
		},
	}

	if deps.IncludeAdvanced {
		tools = append(tools,
			&registry.Tool{
				Definition: registry.Definition{
					Name:            "error_analysis",
					Description:     "Analyze recent errors for patterns and likely root causes",
					Category:        "diagnostic",
					InputSchemaJSON: `{"type":"object","properties":{"analysis_period_hours":{"type":"integer","default":24},"severity_filter":{"type":"string","enum":["all","critical","error","warning"],"default":"all"},"include_root_cause":{"type":"boolean","default":true},"group_by_pattern":{"type":"boolean","default":true}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: d.ErrorAnalysis,
			},
			&registry.Tool{
				Definition: registry.Definition{
					Name:            "log_analysis",
					Description:     "Search and summarize the call log",
					Category:        "diagnostic",
					InputSchemaJSON: `{"type":"object","properties":{"log_sources":{"type":"array","items":{"type":"string"},"default":["application","query","error","performance"]},"log_level":{"type":"string","default":"error"},"search_keywords":{"type":"array","items":{"type":"string"}},"max_log_entries":{"type":"integer","default":1000}}}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: d.LogAnalysis,
			},
		)
	}

	return &registry.Pack{ID: "diagnostic", Tools: tools}
}

type diagnosticHandlers struct {
	deps DiagnosticDeps
}

type healthCheckInput struct {
	CheckCategories       []string `json:"check_categories"`
	IncludeDetailedReport bool     `json:"include_detailed_report"`
	TimeoutSeconds        int      `json:"timeout_seconds"`
}

func (d *diagnosticHandlers) HealthCheck(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in healthCheckInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if len(in.CheckCategories) == 0 {
		in.CheckCategories = []string{"connectivity", "database", "memory", "performance", "configuration"}
	}
	if in.TimeoutSeconds <= 0 {
		in.TimeoutSeconds = 30
	}

	checkCtx, cancel := context.WithTimeout(ctx, time.Duration(in.TimeoutSeconds)*time.Second)
	defer cancel()

	checks := make(map[string]map[string]any, len(in.CheckCategories))
	warnings, criticals := 0, 0
	record := func(category, status, message string, detail map[string]any) {
		check := map[string]any{"status": status, "message": message}
		if in.IncludeDetailedReport && detail != nil {
			check["detail"] = detail
		}
		checks[category] = check
		switch status {
		case "warning":
			warnings++
		case "critical":
			criticals++
		}
	}

	for _, category := range in.CheckCategories {
		switch category {
		case "connectivity":
			start := time.Now()
			health, err := d.deps.Client.Health(checkCtx)
			if err != nil {
				record(category, "critical", fmt.Sprintf("upstream unreachable: %v", err), nil)
				continue
			}
			record(category, "healthy", "upstream reachable", map[string]any{
				"status":     health.Status,
				"latency_ms": time.Since(start).Milliseconds(),
			})
		case "database":
			if d.deps.History == nil {
				record(category, "warning", "call history disabled", nil)
				continue
			}
			sum, err := d.deps.History.Summarize(checkCtx)
			if err != nil {
				record(category, "critical", fmt.Sprintf("history store unavailable: %v", err), nil)
				continue
			}
			record(category, "healthy", "history store responding", map[string]any{
				"total_calls": sum.TotalCalls,
			})
		case "memory":
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			status := "healthy"
			if mem.Alloc > 512<<20 {
				status = "warning"
			}
			record(category, status, fmt.Sprintf("heap in use: %d MiB", mem.Alloc>>20), map[string]any{
				"heap_alloc_bytes": mem.Alloc,
				"goroutines":       runtime.NumGoroutine(),
			})
		case "performance":
			errSnap := d.deps.Tracker.Snapshot()
			status := "healthy"
			message := "error volume normal"
			if errSnap.Total > 100 {
				status = "warning"
				message = fmt.Sprintf("%d errors recorded since startup", errSnap.Total)
			}
			record(category, status, message, map[string]any{
				"errors_by_code": errSnap.ByCode,
				"uptime":         time.Since(d.deps.Started).String(),
			})
		case "configuration":
			record(category, "healthy", "configuration loaded", d.deps.Config)
		default:
			record(category, "warning", "unknown check category", nil)
		}
	}

	overall := "healthy"
	if warnings > 0 {
		overall = "warning"
	}
	if criticals > 0 {
		overall = "critical"
	}

	return respond(map[string]any{
		"overall": overall,
		"checks":  checks,
	})
}

type errorAnalysisInput struct {
	AnalysisPeriodHours int    `json:"analysis_period_hours"`
	SeverityFilter      string `json:"severity_filter"`
	IncludeRootCause    *bool  `json:"include_root_cause"`
	GroupByPattern      *bool  `json:"group_by_pattern"`
}

func (d *diagnosticHandlers) ErrorAnalysis(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in errorAnalysisInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.AnalysisPeriodHours <= 0 {
		in.AnalysisPeriodHours = 24
	}
	if in.SeverityFilter == "" {
		in.SeverityFilter = "all"
	}
	includeRootCause := in.IncludeRootCause == nil || *in.IncludeRootCause
	groupByPattern := in.GroupByPattern == nil || *in.GroupByPattern

	snap := d.deps.Tracker.Snapshot()
	recent := d.deps.Tracker.Recent()

	since := time.Now().UTC().Add(-time.Duration(in.AnalysisPeriodHours) * time.Hour)
	var failures []*history.Entry
	if d.deps.History != nil {
		var err error
		failures, err = d.deps.History.List(ctx, history.Filter{Since: since, OnlyErrors: true, Limit: 1000})
		if err != nil {
			return nil, fmt.Errorf("querying failed calls: %w", err)
		}
	}

	out := map[string]any{
		"period_hours":   in.AnalysisPeriodHours,
		"total_errors":   snap.Total,
		"errors_by_code": snap.ByCode,
		"failed_calls":   len(failures),
	}
	if len(recent) > 0 {
		out["most_recent"] = recent[0]
	}

	if groupByPattern {
		patterns := make(map[string]int)
		for _, e := range failures {
			key := fmt.Sprintf("%s/%s", e.Tool, mcperr.CodeName(e.ErrorCode))
			patterns[key]++
		}
		out["patterns"] = patterns
	}

	if includeRootCause {
		var causes []string
		codes := d.deps.Tracker.CountsByCode()
		if codes[mcperr.CodeAuthenticationError] > 0 {
			causes = append(causes, "authentication failures: verify COGNEE_API_KEY or login credentials")
		}
		if codes[mcperr.CodeRateLimitExceeded] > 0 {
			causes = append(causes, "rate limiting: lower call frequency or raise rate_limit_per_minute")
		}
		if codes[mcperr.CodeToolExecutionError] > 0 {
			causes = append(causes, "execution failures: check upstream health and per-tool timeouts")
		}
		if len(causes) == 0 && snap.Total > 0 {
			causes = append(causes, "no dominant cause; inspect recent errors individually")
		}
		out["root_causes"] = causes
	}

	return respond(out)
}

type logAnalysisInput struct {
	LogSources     []string `json:"log_sources"`
	LogLevel       string   `json:"log_level"`
	SearchKeywords []string `json:"search_keywords"`
	MaxLogEntries  int      `json:"max_log_entries"`
}

func (d *diagnosticHandlers) LogAnalysis(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in logAnalysisInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.LogLevel == "" {
		in.LogLevel = "error"
	}
	if in.MaxLogEntries <= 0 {
		in.MaxLogEntries = 1000
	}
	if d.deps.History == nil {
		return nil, fmt.Errorf("call history is disabled; nothing to analyze")
	}

	filter := history.Filter{Limit: in.MaxLogEntries}
	if in.LogLevel == "error" {
		filter.OnlyErrors = true
	}
	if len(in.SearchKeywords) > 0 {
		filter.Keyword = in.SearchKeywords[0]
	}

	entries, err := d.deps.History.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying call log: %w", err)
	}

	// Secondary keywords filter in memory.
	if len(in.SearchKeywords) > 1 {
		var kept []*history.Entry
		for _, e := range entries {
			text := strings.ToLower(e.ErrorText + " " + e.Tool)
			matched := true
			for _, kw := range in.SearchKeywords[1:] {
				if !strings.Contains(text, strings.ToLower(kw)) {
					matched = false
					break
				}
			}
			if matched {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	byTool := make(map[string]int)
	for _, e := range entries {
		byTool[e.Tool]++
	}

	return respond(map[string]any{
		"log_level":   in.LogLevel,
		"sources":     in.LogSources,
		"keywords":    in.SearchKeywords,
		"entry_count": len(entries),
		"by_tool":     byTool,
		"entries":     entries,
	})
}

type connectivityTestInput struct {
	TestTargets        []string `json:"test_targets"`
	TestDepth          string   `json:"test_depth"`
	TimeoutPerTest     int      `json:"timeout_per_test"`
	IncludeLatencyTest *bool    `json:"include_latency_test"`
	ConcurrentTests    bool     `json:"concurrent_tests"`
}

func (d *diagnosticHandlers) ConnectivityTest(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in connectivityTestInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if len(in.TestTargets) == 0 {
		in.TestTargets = []string{"api_server", "database", "cache", "external_services"}
	}
	if in.TestDepth == "" {
		in.TestDepth = "basic"
	}
	if in.TimeoutPerTest <= 0 {
		in.TimeoutPerTest = 10
	}
	includeLatency := in.IncludeLatencyTest == nil || *in.IncludeLatencyTest

	probes := 1
	switch in.TestDepth {
	case "comprehensive":
		probes = 3
	case "stress":
		probes = 10
	}

	runProbe := func(target string) map[string]any {
		probeCtx, cancel := context.WithTimeout(ctx, time.Duration(in.TimeoutPerTest)*time.Second)
		defer cancel()

		var latencies []int64
		var lastErr error
		for i := 0; i < probes; i++ {
			start := time.Now()
			var err error
			switch target {
			case "api_server":
				_, err = d.deps.Client.Health(probeCtx)
			case "database", "cache", "external_services":
				// Surfaced through the detailed health report.
				_, err = d.deps.Client.HealthDetailed(probeCtx)
			default:
				return map[string]any{"target": target, "status": "skipped", "message": "unknown target"}
			}
			if err != nil {
				lastErr = err
				break
			}
			latencies = append(latencies, time.Since(start).Milliseconds())
		}

		result := map[string]any{"target": target, "probes": probes}
		if lastErr != nil {
			result["status"] = "failed"
			result["error"] = lastErr.Error()
			return result
		}
		result["status"] = "ok"
		if includeLatency && len(latencies) > 0 {
			var sum int64
			for _, l := range latencies {
				sum += l
			}
			sorted := append([]int64(nil), latencies...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			result["mean_latency_ms"] = sum / int64(len(latencies))
			result["max_latency_ms"] = sorted[len(sorted)-1]
		}
		return result
	}

	results := make([]map[string]any, 0, len(in.TestTargets))
	if in.ConcurrentTests {
		type indexed struct {
			i   int
			res map[string]any
		}
		ch := make(chan indexed, len(in.TestTargets))
		for i, target := range in.TestTargets {
			go func(i int, target string) {
				ch <- indexed{i: i, res: runProbe(target)}
			}(i, target)
		}
		results = make([]map[string]any, len(in.TestTargets))
		for range in.TestTargets {
			r := <-ch
			results[r.i] = r.res
		}
	} else {
		for _, target := range in.TestTargets {
			results = append(results, runProbe(target))
		}
	}

	failed := 0
	for _, r := range results {
		if r["status"] == "failed" {
			failed++
		}
	}

	return respond(map[string]any{
		"test_depth": in.TestDepth,
		"concurrent": in.ConcurrentTests,
		"results":    results,
		"failed":     failed,
	})
}
