// ABOUTME: Tests for the tool packs against a fake upstream API.
// ABOUTME: Covers defaults, guards, dataset fallback, memory envelopes, and local reasoning.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/history"
	"github.com/2389/cognee-mcp/internal/mcperr"
)

// fakeUpstream is a minimal in-memory rendition of the remote API.
type fakeUpstream struct {
	mux      *http.ServeMux
	requests []string
	searches []cognee.SearchRequest
	cyphers  []string
	memory   []cognee.MemoryItem
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *httptest.Server) {
	t.Helper()
	f := &fakeUpstream{mux: http.NewServeMux()}

	f.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cognee.HealthStatus{Status: "healthy"})
	})
	f.mux.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "database": "ok"})
	})
	f.mux.HandleFunc("/api/v1/add", func(w http.ResponseWriter, r *http.Request) {
		var req cognee.AddDataRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(cognee.AddDataResponse{
			DatasetID:     "ds-" + req.DatasetName,
			IngestedCount: len(req.Data),
		})
	})
	f.mux.HandleFunc("/api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		var req cognee.SearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.requests = append(f.requests, "search:"+req.SearchType)
		f.searches = append(f.searches, req)
		json.NewEncoder(w).Encode(cognee.SearchResponse{
			Query:      req.Query,
			Results:    []cognee.SearchResult{{ID: "r1", Content: "hit", Score: 0.9}},
			TotalCount: 1,
		})
	})
	f.mux.HandleFunc("/api/v1/datasets", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]cognee.Dataset{
			{ID: "ds-first", Name: "first", DataCount: 3},
			{ID: "ds-empty", Name: "empty", DataCount: 0},
		})
	})
	f.mux.HandleFunc("/api/v1/datasets/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/datasets/")
		switch {
		case strings.HasSuffix(path, "/graph"):
			var q cognee.GraphQueryRequest
			json.NewDecoder(r.Body).Decode(&q)
			f.requests = append(f.requests, "graph:"+path)
			f.cyphers = append(f.cyphers, q.Cypher)
			json.NewEncoder(w).Encode(cognee.GraphQueryResponse{
				Results: []map[string]any{{"n": "node"}},
			})
		case strings.HasSuffix(path, "/memory/append"):
			var payload struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			f.memory = append(f.memory, cognee.MemoryItem{
				Role: payload.Role, Content: payload.Content, Timestamp: time.Now().UTC(),
			})
			json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		case strings.HasSuffix(path, "/memory"):
			json.NewEncoder(w).Encode(map[string]any{"memory": f.memory})
		case r.Method == http.MethodDelete:
			f.requests = append(f.requests, "delete:"+path)
			w.Write([]byte("{}"))
		default:
			json.NewEncoder(w).Encode(cognee.Dataset{ID: path, Name: path, DataCount: 1})
		}
	})

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newToolClient(t *testing.T, srv *httptest.Server) *cognee.Client {
	t.Helper()
	c, err := cognee.New(cognee.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return c
}

func callTool(t *testing.T, handler func(context.Context, json.RawMessage) (json.RawMessage, error), args string) map[string]any {
	t.Helper()
	raw, err := handler(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	return out
}

func TestBasicPackRegistersFiveTools(t *testing.T) {
	_, srv := newFakeUpstream(t)
	pack := BasicPack(newToolClient(t, srv))
	if len(pack.Tools) != 5 {
		t.Fatalf("expected 5 basic tools, got %d", len(pack.Tools))
	}
	for _, tool := range pack.Tools {
		if tool.Definition.InputSchemaJSON == "" {
			t.Errorf("tool %s has no schema", tool.Definition.Name)
		}
	}
}

func TestAddTextDefaultsDataset(t *testing.T) {
	_, srv := newFakeUpstream(t)
	b := &basicHandlers{client: newToolClient(t, srv)}

	out := callTool(t, b.AddText, `{"text":"hello"}`)
	if out["dataset"] != "main_dataset" {
		t.Errorf("expected default dataset main_dataset, got %v", out["dataset"])
	}
	if out["dataset_id"] != "ds-main_dataset" {
		t.Errorf("unexpected dataset_id: %v", out["dataset_id"])
	}
}

func TestSearchDefaults(t *testing.T) {
	f, srv := newFakeUpstream(t)
	b := &basicHandlers{client: newToolClient(t, srv)}

	out := callTool(t, b.Search, `{"query":"anything"}`)
	if out["search_type"] != "graph_completion" {
		t.Errorf("expected default search_type, got %v", out["search_type"])
	}
	if len(f.searches) != 1 {
		t.Fatalf("upstream saw %d search requests, want 1", len(f.searches))
	}
	sent := f.searches[0]
	if sent.SearchType != "graph_completion" {
		t.Errorf("upstream search_type = %q, want lowercase graph_completion", sent.SearchType)
	}
	if sent.Limit != 10 {
		t.Errorf("upstream limit = %d, want default 10", sent.Limit)
	}
	if !sent.IncludeMetadata {
		t.Error("include_metadata should default to true on the wire")
	}
}

func TestSearchWirePayload(t *testing.T) {
	f, srv := newFakeUpstream(t)
	b := &basicHandlers{client: newToolClient(t, srv)}

	callTool(t, b.Search, `{"query":"q","search_type":"chunks","limit":5,"include_metadata":false}`)

	if len(f.searches) != 1 {
		t.Fatalf("upstream saw %d search requests, want 1", len(f.searches))
	}
	sent := f.searches[0]
	if sent.SearchType != "chunks" {
		t.Errorf("upstream search_type = %q, want chunks as given", sent.SearchType)
	}
	if sent.Limit != 5 {
		t.Errorf("upstream limit = %d, want 5", sent.Limit)
	}
	if sent.IncludeMetadata {
		t.Error("explicit include_metadata=false must be forwarded upstream")
	}
}

func TestDatasetDeleteRequiresConfirm(t *testing.T) {
	f, srv := newFakeUpstream(t)
	d := &datasetHandlers{client: newToolClient(t, srv)}

	_, err := d.Delete(context.Background(), json.RawMessage(`{"dataset_id":"ds-1","confirm":false}`))
	if err == nil {
		t.Fatal("expected error without confirm")
	}
	if len(f.requests) != 0 {
		t.Errorf("upstream should not have been called, saw %v", f.requests)
	}

	out := callTool(t, d.Delete, `{"dataset_id":"ds-1","confirm":true}`)
	if out["status"] != "deleted" {
		t.Errorf("expected deleted, got %v", out["status"])
	}
}

func TestDatasetsListFiltersEmpty(t *testing.T) {
	_, srv := newFakeUpstream(t)
	d := &datasetHandlers{client: newToolClient(t, srv)}

	out := callTool(t, d.List, `{"include_empty":false}`)
	if out["total"] != float64(1) {
		t.Errorf("expected 1 non-empty dataset, got %v", out["total"])
	}
}

func TestGraphQueryDefaultsToFirstDataset(t *testing.T) {
	f, srv := newFakeUpstream(t)
	g := &graphHandlers{client: newToolClient(t, srv)}

	out := callTool(t, g.Query, `{"cypher":"MATCH (n) RETURN n"}`)
	if out["dataset_id"] != "ds-first" {
		t.Errorf("expected fallback to ds-first, got %v", out["dataset_id"])
	}
	if out["dataset_defaulted"] != true {
		t.Error("expected dataset_defaulted true")
	}
	found := false
	for _, r := range f.requests {
		if r == "graph:ds-first/graph" {
			found = true
		}
	}
	if !found {
		t.Errorf("upstream never saw the graph query: %v", f.requests)
	}
}

func TestEventSequenceAppliesTimeWindow(t *testing.T) {
	f, srv := newFakeUpstream(t)
	h := &temporalHandlers{client: newToolClient(t, srv)}

	out := callTool(t, h.EventSequence, `{"seed_event":"ev-1","max_depth":3,"time_window_hours":6}`)
	if out["time_window_hours"] != float64(6) {
		t.Errorf("expected window echoed as 6, got %v", out["time_window_hours"])
	}

	if len(f.cyphers) != 1 {
		t.Fatalf("upstream saw %d graph queries, want 1", len(f.cyphers))
	}
	cypher := f.cyphers[0]
	if !strings.Contains(cypher, "duration.inHours") || !strings.Contains(cypher, "<= 6") {
		t.Errorf("query does not constrain the time window: %s", cypher)
	}
	if !strings.Contains(cypher, "1..3") {
		t.Errorf("query does not bound depth: %s", cypher)
	}
}

func TestMemoryStoreAndRetrieveRoundtrip(t *testing.T) {
	_, srv := newFakeUpstream(t)
	m := &memoryHandlers{client: newToolClient(t, srv)}

	stored := callTool(t, m.Store, `{"memory_content":"the sky is blue","memory_type":"semantic","importance_score":0.9}`)
	if stored["status"] != "stored" {
		t.Fatalf("store failed: %v", stored)
	}

	out := callTool(t, m.Retrieve, `{"query":"sky","min_importance":0.8}`)
	matches, ok := out["matches"].([]any)
	if !ok || len(matches) != 1 {
		t.Fatalf("expected 1 match, got %v", out["matches"])
	}
	match := matches[0].(map[string]any)
	if match["type"] != "semantic" {
		t.Errorf("expected semantic type, got %v", match["type"])
	}
	if match["importance"] != 0.9 {
		t.Errorf("expected importance 0.9, got %v", match["importance"])
	}

	// Importance floor filters it out.
	out = callTool(t, m.Retrieve, `{"query":"sky","min_importance":0.95}`)
	if matches, _ := out["matches"].([]any); len(matches) != 0 {
		t.Errorf("expected no matches above 0.95, got %v", matches)
	}
}

func TestMemoryStoreRejectsBadImportance(t *testing.T) {
	_, srv := newFakeUpstream(t)
	m := &memoryHandlers{client: newToolClient(t, srv)}

	_, err := m.Store(context.Background(), json.RawMessage(`{"memory_content":"x","importance_score":1.5}`))
	if err == nil {
		t.Error("expected error for importance_score > 1")
	}
}

func TestSemanticReasoning(t *testing.T) {
	o := &ontologyHandlers{}

	t.Run("subsumption", func(t *testing.T) {
		out := callTool(t, o.Reasoning, `{"reasoning_type":"subsumption","premises":["Cat subClassOf Mammal","Mammal subClassOf Animal"]}`)
		subs := out["subsumptions"].(map[string]any)
		catAncestors := subs["Cat"].([]any)
		if len(catAncestors) != 2 {
			t.Errorf("expected Cat to have 2 ancestors, got %v", catAncestors)
		}
	})

	t.Run("consistency detects cycles", func(t *testing.T) {
		out := callTool(t, o.Reasoning, `{"reasoning_type":"consistency","premises":["A subClassOf B","B subClassOf A"]}`)
		if out["consistent"] != false {
			t.Errorf("expected inconsistent, got %v", out["consistent"])
		}
	})

	t.Run("entailment derives transitive edges", func(t *testing.T) {
		out := callTool(t, o.Reasoning, `{"reasoning_type":"entailment","premises":["Cat subClassOf Mammal","Mammal subClassOf Animal"]}`)
		entailed := out["entailed_statements"].([]any)
		if len(entailed) != 1 || entailed[0] != "Cat subClassOf Animal" {
			t.Errorf("unexpected entailments: %v", entailed)
		}
	})

	t.Run("malformed premises reported", func(t *testing.T) {
		out := callTool(t, o.Reasoning, `{"reasoning_type":"classification","premises":["not a premise"]}`)
		if _, ok := out["malformed_premises"]; !ok {
			t.Error("expected malformed_premises in output")
		}
	})
}

func TestPerformanceMonitorAlerts(t *testing.T) {
	store, err := history.New(":memory:", 0)
	if err != nil {
		t.Fatalf("creating history: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		store.Append(ctx, &history.Entry{
			Tool: "flaky_tool", Category: "basic",
			StartedAt: now.Add(-time.Minute), DurationMS: 10, OK: false, ErrorCode: -32006,
		})
	}
	store.Append(ctx, &history.Entry{
		Tool: "good_tool", Category: "basic",
		StartedAt: now.Add(-time.Minute), DurationMS: 10, OK: true,
	})

	s := &selfImproveHandlers{store: store}
	out := callTool(t, s.PerformanceMonitor, `{"alert_threshold":0.5}`)
	alerts, _ := out["alerts"].([]any)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %v", out["alerts"])
	}
	alert := alerts[0].(map[string]any)
	if alert["tool"] != "flaky_tool" {
		t.Errorf("expected flaky_tool alert, got %v", alert["tool"])
	}
}

func TestHealthCheckOverallStatus(t *testing.T) {
	_, srv := newFakeUpstream(t)
	store, err := history.New(":memory:", 0)
	if err != nil {
		t.Fatalf("creating history: %v", err)
	}
	defer store.Close()

	d := &diagnosticHandlers{deps: DiagnosticDeps{
		Client:  newToolClient(t, srv),
		History: store,
		Tracker: mcperr.NewTracker(),
		Config:  map[string]any{"api": map[string]any{"base_url": srv.URL}},
		Started: time.Now(),
	}}

	out := callTool(t, d.HealthCheck, `{}`)
	if out["overall"] != "healthy" {
		t.Errorf("expected healthy, got %v (%v)", out["overall"], out["checks"])
	}
	checks := out["checks"].(map[string]any)
	if len(checks) != 5 {
		t.Errorf("expected 5 checks, got %d", len(checks))
	}
}

func TestHealthCheckCriticalOnUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := &diagnosticHandlers{deps: DiagnosticDeps{
		Client:  newToolClient(t, srv),
		Tracker: mcperr.NewTracker(),
		Started: time.Now(),
	}}

	out := callTool(t, d.HealthCheck, `{"check_categories":["connectivity"]}`)
	if out["overall"] != "critical" {
		t.Errorf("expected critical, got %v", out["overall"])
	}
}

func TestDiagnosticPackGatesAdvancedTools(t *testing.T) {
	_, srv := newFakeUpstream(t)
	client := newToolClient(t, srv)

	basic := DiagnosticPack(DiagnosticDeps{Client: client, Tracker: mcperr.NewTracker()})
	if len(basic.Tools) != 2 {
		t.Errorf("expected 2 tools without advanced analytics, got %d", len(basic.Tools))
	}

	full := DiagnosticPack(DiagnosticDeps{Client: client, Tracker: mcperr.NewTracker(), IncludeAdvanced: true})
	if len(full.Tools) != 4 {
		t.Errorf("expected 4 tools with advanced analytics, got %d", len(full.Tools))
	}
}
