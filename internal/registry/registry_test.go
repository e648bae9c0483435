// ABOUTME: Tests for the tool registry and call pipeline.
// ABOUTME: Covers registration, collisions, listing, rate limits, validation, and timeouts.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(name, category string) *Tool {
	return &Tool{
		Definition: Definition{
			Name:     name,
			Category: category,
			InputSchemaJSON: `{
				"type": "object",
				"properties": {
					"message": {"type": "string"}
				},
				"required": ["message"]
			}`,
			Enabled: true,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return input, nil
		},
	}
}

func TestRegisterPackAndGet(t *testing.T) {
	r := New(testLogger())
	err := r.RegisterPack(&Pack{ID: "basic", Tools: []*Tool{echoTool("echo", "basic")}})
	if err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	if _, ok := r.Get("echo"); !ok {
		t.Error("expected echo to be registered")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing to be absent")
	}
}

func TestRegisterPackCollision(t *testing.T) {
	r := New(testLogger())
	if err := r.RegisterPack(&Pack{ID: "a", Tools: []*Tool{echoTool("echo", "basic")}}); err != nil {
		t.Fatalf("first RegisterPack failed: %v", err)
	}

	err := r.RegisterPack(&Pack{ID: "b", Tools: []*Tool{echoTool("echo", "other")}})
	if !errors.Is(err, ErrToolCollision) {
		t.Errorf("expected ErrToolCollision, got %v", err)
	}
}

func TestListSortedAndFiltered(t *testing.T) {
	r := New(testLogger())
	disabled := echoTool("zeta", "graph")
	disabled.Definition.Enabled = false
	err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{
		echoTool("beta", "graph"),
		echoTool("alpha", "basic"),
		disabled,
	}})
	if err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	defs := r.List(ListFilter{})
	if len(defs) != 2 {
		t.Fatalf("expected 2 enabled tools, got %d", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "beta" {
		t.Errorf("expected sorted order [alpha beta], got [%s %s]", defs[0].Name, defs[1].Name)
	}

	graph := r.List(ListFilter{Category: "graph", IncludeDisabled: true})
	if len(graph) != 2 {
		t.Errorf("expected 2 graph tools with disabled included, got %d", len(graph))
	}
}

func TestCallNotFoundAndDisabled(t *testing.T) {
	r := New(testLogger())
	tool := echoTool("echo", "basic")
	tool.Definition.Enabled = false
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{tool}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	_, err := r.Call(context.Background(), "missing", json.RawMessage(`{}`))
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}

	_, err = r.Call(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if !errors.Is(err, ErrToolDisabled) {
		t.Errorf("expected ErrToolDisabled, got %v", err)
	}

	if err := r.SetEnabled("echo", true); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	res, err := r.Call(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if res.Err != nil {
		t.Errorf("unexpected handler error: %v", res.Err)
	}
}

func TestCallValidation(t *testing.T) {
	r := New(testLogger())
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{echoTool("echo", "basic")}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"missing required", `{}`},
		{"wrong type", `{"message": 42}`},
		{"not an object", `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(context.Background(), "echo", json.RawMessage(tt.input))
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCallEnumValidation(t *testing.T) {
	r := New(testLogger())
	tool := &Tool{
		Definition: Definition{
			Name: "search",
			InputSchemaJSON: `{
				"type": "object",
				"properties": {
					"search_type": {"type": "string", "enum": ["graph_completion", "chunks"]}
				}
			}`,
			Enabled: true,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{tool}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	if _, err := r.Call(context.Background(), "search", json.RawMessage(`{"search_type":"chunks"}`)); err != nil {
		t.Errorf("valid enum value rejected: %v", err)
	}
	_, err := r.Call(context.Background(), "search", json.RawMessage(`{"search_type":"bogus"}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad enum, got %v", err)
	}
}

func TestCallRateLimit(t *testing.T) {
	r := New(testLogger())
	tool := echoTool("echo", "basic")
	tool.Definition.RateLimitPerMin = 2
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{tool}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	input := json.RawMessage(`{"message":"hi"}`)
	for i := 0; i < 2; i++ {
		if _, err := r.Call(context.Background(), "echo", input); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	_, err := r.Call(context.Background(), "echo", input)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestCallTimeout(t *testing.T) {
	r := New(testLogger())
	tool := &Tool{
		Definition: Definition{
			Name:    "slow",
			Timeout: 20 * time.Millisecond,
			Enabled: true,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			select {
			case <-time.After(time.Second):
				return json.RawMessage(`{}`), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{tool}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	res, err := r.Call(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", res.Err)
	}
}

func TestCallConcurrentWithSetEnabled(t *testing.T) {
	r := New(testLogger())
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{echoTool("echo", "basic")}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if err := r.SetEnabled("echo", i%2 == 0); err != nil {
				t.Errorf("SetEnabled failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 100; i++ {
		res, err := r.Call(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
		if err != nil {
			if !errors.Is(err, ErrToolDisabled) && !errors.Is(err, ErrRateLimited) {
				t.Fatalf("unexpected pipeline error: %v", err)
			}
			continue
		}
		if res.Err != nil {
			t.Fatalf("handler failed: %v", res.Err)
		}
	}
	<-done
}

func TestStatsTracking(t *testing.T) {
	r := New(testLogger())
	failing := &Tool{
		Definition: Definition{Name: "flaky", Category: "basic", Enabled: true},
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("boom")
		},
	}
	if err := r.RegisterPack(&Pack{ID: "p", Tools: []*Tool{echoTool("echo", "basic"), failing}}); err != nil {
		t.Fatalf("RegisterPack failed: %v", err)
	}

	if _, err := r.Call(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`)); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if _, err := r.Call(context.Background(), "flaky", nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	infos := r.Info()
	if len(infos) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(infos))
	}
	// sorted: echo then flaky
	if infos[0].Calls != 1 || infos[0].Errors != 0 {
		t.Errorf("echo stats wrong: %+v", infos[0])
	}
	if infos[1].Calls != 1 || infos[1].Errors != 1 {
		t.Errorf("flaky stats wrong: %+v", infos[1])
	}

	sum := r.Snapshot()
	if sum.TotalTools != 2 || sum.TotalCalls != 2 || sum.TotalErrors != 1 {
		t.Errorf("summary wrong: %+v", sum)
	}
	if sum.ByCategory["basic"] != 2 {
		t.Errorf("expected 2 basic tools, got %d", sum.ByCategory["basic"])
	}
}
