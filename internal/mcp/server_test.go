// ABOUTME: Tests for the stdio dispatcher.
// ABOUTME: Drives Serve with line-delimited JSON and checks response envelopes.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/2389/cognee-mcp/internal/auth"
	"github.com/2389/cognee-mcp/internal/config"
	"github.com/2389/cognee-mcp/internal/mcperr"
	"github.com/2389/cognee-mcp/internal/registry"
)

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  map[string]any  `json:"result"`
	Error   *mcperr.Error   `json:"error"`
}

func testServer(t *testing.T, chain *auth.Chain) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(logger)
	err := reg.RegisterPack(&registry.Pack{
		ID: "test",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "echo",
					Description:     "Echo the message back",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`,
					Enabled:         true,
					Timeout:         time.Second,
				},
				Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
					return input, nil
				},
			},
			{
				Definition: registry.Definition{
					Name:            "guarded",
					Description:     "Needs credentials",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object"}`,
					RequiresAuth:    true,
					Enabled:         true,
					Timeout:         time.Second,
				},
				Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
					return json.RawMessage(`{"ok":true}`), nil
				},
			},
			{
				Definition: registry.Definition{
					Name:            "failing",
					Description:     "Always fails",
					Category:        "basic",
					InputSchemaJSON: `{"type":"object"}`,
					Enabled:         true,
					Timeout:         time.Second,
				},
				Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
					return nil, errors.New("upstream exploded")
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("registering test pack: %v", err)
	}

	if chain == nil {
		chain = auth.NewChain(auth.Config{})
	}

	return NewServer(Options{
		Config:   config.Default(),
		Registry: reg,
		Auth:     chain,
		Tracker:  mcperr.NewTracker(),
		Logger:   logger,
	})
}

// run feeds requests to Serve and returns responses keyed by id
// (parse errors land under "null").
func run(t *testing.T, s *Server, lines ...string) map[string]rpcResponse {
	t.Helper()

	input := strings.Join(lines, "\n") + "\n"
	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	responses := make(map[string]rpcResponse)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("decoding response %q: %v", line, err)
		}
		key := "null"
		if len(resp.ID) > 0 {
			key = string(resp.ID)
		}
		responses[key] = resp
	}
	return responses
}

const initLine = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`

func TestInitializeHandshake(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine)

	resp, ok := resps["1"]
	if !ok {
		t.Fatal("no response for initialize")
	}
	if resp.Error != nil {
		t.Fatalf("initialize failed: %v", resp.Error)
	}
	if resp.Result["protocolVersion"] != "2024-11-05" {
		t.Errorf("wrong protocol version: %v", resp.Result["protocolVersion"])
	}
	info := resp.Result["serverInfo"].(map[string]any)
	if info["name"] != "cognee-mcp-server" {
		t.Errorf("wrong server name: %v", info["name"])
	}
}

func TestRequestsBeforeInitializeRejected(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	resp := resps["1"]
	if resp.Error == nil || resp.Error.Code != mcperr.CodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %v", resp.Error)
	}
}

func TestPingAllowedBeforeInitialize(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	if resp := resps["1"]; resp.Error != nil {
		t.Errorf("ping should succeed before initialize, got %v", resp.Error)
	}
}

func TestParseErrorHasNullID(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, `this is not json`)

	resp, ok := resps["null"]
	if !ok {
		t.Fatal("no response for unparseable line")
	}
	if resp.Error == nil || resp.Error.Code != mcperr.CodeParseError {
		t.Errorf("expected PARSE_ERROR, got %v", resp.Error)
	}
}

func TestNotificationsNeverAnswered(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	if len(resps) != 1 {
		t.Errorf("expected only the initialize response, got %d responses", len(resps))
	}
}

func TestWrongJsonrpcVersion(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, `{"jsonrpc":"1.0","id":1,"method":"initialize"}`)

	resp := resps["1"]
	if resp.Error == nil || resp.Error.Code != mcperr.CodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine, `{"jsonrpc":"2.0","id":2,"method":"bogus/method"}`)

	resp := resps["2"]
	if resp.Error == nil || resp.Error.Code != mcperr.CodeMethodNotFound {
		t.Errorf("expected METHOD_NOT_FOUND, got %v", resp.Error)
	}
}

func TestToolsList(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	resp := resps["2"]
	if resp.Error != nil {
		t.Fatalf("tools/list failed: %v", resp.Error)
	}
	toolList := resp.Result["tools"].([]any)
	if len(toolList) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(toolList))
	}
	first := toolList[0].(map[string]any)
	if first["name"] != "echo" {
		t.Errorf("expected sorted order starting with echo, got %v", first["name"])
	}
	if _, ok := first["inputSchema"].(map[string]any); !ok {
		t.Errorf("inputSchema should be a JSON object, got %T", first["inputSchema"])
	}
}

func TestToolCallSuccess(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)

	resp := resps["2"]
	if resp.Error != nil {
		t.Fatalf("tools/call failed: %v", resp.Error)
	}
	if resp.Result["isError"] != false {
		t.Errorf("expected isError false, got %v", resp.Result["isError"])
	}
	content := resp.Result["content"].([]any)[0].(map[string]any)
	if !strings.Contains(content["text"].(string), "hi") {
		t.Errorf("echo output missing input: %v", content["text"])
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"missing","arguments":{}}}`)

	resp := resps["2"]
	if resp.Error == nil || resp.Error.Code != mcperr.CodeInvalidParams {
		t.Errorf("expected INVALID_PARAMS, got %v", resp.Error)
	}
}

func TestToolCallInvalidInput(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":42}}}`)

	resp := resps["2"]
	if resp.Error == nil || resp.Error.Code != mcperr.CodeInvalidParams {
		t.Errorf("expected INVALID_PARAMS for bad input, got %v", resp.Error)
	}
}

func TestToolCallExecutionFailureIsErrorResult(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"failing","arguments":{}}}`)

	resp := resps["2"]
	if resp.Error != nil {
		t.Fatalf("execution failures should be isError results, got protocol error %v", resp.Error)
	}
	if resp.Result["isError"] != true {
		t.Errorf("expected isError true, got %v", resp.Result["isError"])
	}
	content := resp.Result["content"].([]any)[0].(map[string]any)
	if !strings.Contains(content["text"].(string), "upstream exploded") {
		t.Errorf("error text missing cause: %v", content["text"])
	}
}

func TestToolCallRequiresAuthAnonymous(t *testing.T) {
	s := testServer(t, nil) // anonymous chain
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"guarded","arguments":{}}}`)

	resp := resps["2"]
	if resp.Error == nil || resp.Error.Code != mcperr.CodeAuthenticationError {
		t.Errorf("expected AUTHENTICATION_ERROR, got %v", resp.Error)
	}
}

func TestToolCallRequiresAuthWithKey(t *testing.T) {
	s := testServer(t, auth.NewChain(auth.Config{Key: "sk-test"}))
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"guarded","arguments":{}}}`)

	resp := resps["2"]
	if resp.Error != nil {
		t.Fatalf("expected success with key, got %v", resp.Error)
	}
	if resp.Result["isError"] != false {
		t.Errorf("expected isError false, got %v", resp.Result["isError"])
	}
}

func TestResourcesListAndRead(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"config://settings"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{"uri":"bogus://nope"}}`)

	listResp := resps["2"]
	if listResp.Error != nil {
		t.Fatalf("resources/list failed: %v", listResp.Error)
	}
	if n := len(listResp.Result["resources"].([]any)); n != 3 {
		t.Errorf("expected 3 resources, got %d", n)
	}

	readResp := resps["3"]
	if readResp.Error != nil {
		t.Fatalf("resources/read failed: %v", readResp.Error)
	}
	contents := readResp.Result["contents"].([]any)[0].(map[string]any)
	if contents["mimeType"] != "application/json" {
		t.Errorf("wrong mime type: %v", contents["mimeType"])
	}

	unknownResp := resps["4"]
	if unknownResp.Error == nil || unknownResp.Error.Code != mcperr.CodeResourceNotFound {
		t.Errorf("expected RESOURCE_NOT_FOUND, got %v", unknownResp.Error)
	}
}

func TestStatsServerResource(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"stats://server"}}`)

	resp := resps["3"]
	if resp.Error != nil {
		t.Fatalf("stats read failed: %v", resp.Error)
	}
	text := resp.Result["contents"].([]any)[0].(map[string]any)["text"].(string)

	var stats map[string]any
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("stats is not JSON: %v", err)
	}
	if stats["initialized"] != true {
		t.Error("expected initialized true")
	}
	if stats["auth_mode"] != "anonymous" {
		t.Errorf("expected anonymous auth mode, got %v", stats["auth_mode"])
	}
}

func TestParseErrorCountsAsRequest(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, `not json at all`, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"stats://server"}}`)

	text := resps["2"].Result["contents"].([]any)[0].(map[string]any)["text"].(string)
	var stats map[string]any
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("stats is not JSON: %v", err)
	}

	total := stats["total_requests"].(float64)
	errs := stats["total_errors"].(float64)
	if total < errs {
		t.Errorf("total_requests %v below total_errors %v", total, errs)
	}
	if rate := stats["success_rate"].(float64); rate < 0 || rate > 1 {
		t.Errorf("success_rate %v outside [0,1]", rate)
	}
}

func TestPromptsListAndGet(t *testing.T) {
	s := testServer(t, nil)
	resps := run(t, s, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"prompts/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"prompts/get","params":{"name":"analyze_data","arguments":{"dataset_name":"main"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"prompts/get","params":{"name":"nonexistent"}}`,
		`{"jsonrpc":"2.0","id":5,"method":"prompts/get","params":{"name":"analyze_data","arguments":{}}}`)

	listResp := resps["2"]
	if n := len(listResp.Result["prompts"].([]any)); n != 2 {
		t.Errorf("expected 2 prompts, got %d", n)
	}

	getResp := resps["3"]
	if getResp.Error != nil {
		t.Fatalf("prompts/get failed: %v", getResp.Error)
	}
	messages := getResp.Result["messages"].([]any)
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" {
		t.Errorf("expected user role, got %v", msg["role"])
	}
	text := msg["content"].(map[string]any)["text"].(string)
	if !strings.Contains(text, "main") {
		t.Errorf("prompt text missing dataset name: %v", text)
	}

	if resp := resps["4"]; resp.Error == nil || resp.Error.Code != mcperr.CodeInvalidParams {
		t.Errorf("expected INVALID_PARAMS for unknown prompt, got %v", resp.Error)
	}
	if resp := resps["5"]; resp.Error == nil || resp.Error.Code != mcperr.CodeInvalidParams {
		t.Errorf("expected INVALID_PARAMS for missing dataset_name, got %v", resp.Error)
	}
}
