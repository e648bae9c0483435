// ABOUTME: JSON-RPC 2.0 dispatcher speaking MCP over stdio, one JSON object per line.
// ABOUTME: Routes initialize, tools, resources, prompts, and ping; bounds concurrent tool calls.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cognee-mcp/internal/auth"
	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/config"
	"github.com/2389/cognee-mcp/internal/history"
	"github.com/2389/cognee-mcp/internal/mcperr"
	"github.com/2389/cognee-mcp/internal/registry"
)

const (
	// protocol line limits for the stdin scanner
	initialScanBuffer = 1024 * 1024
	maxScanBuffer     = 10 * 1024 * 1024
)

// Options wires a Server to its collaborators.
type Options struct {
	Config   *config.Config
	Registry *registry.Registry
	Client   *cognee.Client
	Auth     *auth.Chain
	History  *history.Store
	Tracker  *mcperr.Tracker
	Logger   *slog.Logger
}

// Server is the stdio MCP dispatcher.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	client   *cognee.Client
	auth     *auth.Chain
	history  *history.Store
	tracker  *mcperr.Tracker
	logger   *slog.Logger

	started       time.Time
	initialized   atomic.Bool
	totalRequests atomic.Int64
	totalErrors   atomic.Int64

	writeMu sync.Mutex
	sem     chan struct{}
}

// NewServer creates a Server from Options.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mcp")
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = mcperr.NewTracker()
	}
	concurrency := opts.Config.Server.MaxConcurrentRequests
	if concurrency < 1 {
		concurrency = 1
	}
	return &Server{
		cfg:      opts.Config,
		registry: opts.Registry,
		client:   opts.Client,
		auth:     opts.Auth,
		history:  opts.History,
		tracker:  tracker,
		logger:   logger,
		started:  time.Now(),
		sem:      make(chan struct{}, concurrency),
	}
}

// request is one incoming JSON-RPC message.
type request struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// isNotification reports whether the message carries no id.
func (r *request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

type response struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *mcperr.Error   `json:"error,omitempty"`
}

// Serve reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is cancelled. Tool calls
// run concurrently up to the configured bound; responses may complete
// out of order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)

	var wg sync.WaitGroup
	defer wg.Wait()

	s.logger.Info("server listening",
		"name", s.cfg.Server.Name,
		"version", s.cfg.Server.Version,
		"protocol", s.cfg.Server.ProtocolVersion,
	)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			// A malformed line still counts as a request, so the error it
			// produces never pushes the success rate negative.
			s.totalRequests.Add(1)
			s.writeError(w, json.RawMessage("null"), mcperr.New(mcperr.CodeParseError, "parse error"), "")
			continue
		}

		if req.isNotification() {
			// notifications/initialized and friends: consume, never answer
			s.logger.Debug("notification received", "method", req.Method)
			continue
		}

		s.totalRequests.Add(1)

		if req.Jsonrpc != "2.0" {
			s.writeError(w, req.ID, mcperr.New(mcperr.CodeInvalidRequest, "jsonrpc must be \"2.0\""), "")
			continue
		}

		if !s.initialized.Load() && req.Method != "initialize" && req.Method != "ping" {
			s.writeError(w, req.ID, mcperr.New(mcperr.CodeInvalidRequest, "server not initialized"), "")
			continue
		}

		if req.Method == "tools/call" {
			wg.Add(1)
			go func(req request) {
				defer wg.Done()
				s.sem <- struct{}{}
				defer func() { <-s.sem }()
				s.handleToolCall(ctx, w, req)
			}(req)
			continue
		}

		result, rpcErr := s.dispatch(ctx, &req)
		if rpcErr != nil {
			s.writeError(w, req.ID, rpcErr, "")
			continue
		}
		s.writeResult(w, req.ID, result)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// dispatch handles every method except tools/call.
func (s *Server) dispatch(ctx context.Context, req *request) (any, *mcperr.Error) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize()
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.handleToolsList()
	case "resources/list":
		return s.handleResourcesList()
	case "resources/read":
		return s.handleResourcesRead(ctx, req.Params)
	case "prompts/list":
		return s.handlePromptsList()
	case "prompts/get":
		return s.handlePromptsGet(req.Params)
	default:
		return nil, mcperr.Newf(mcperr.CodeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Server) handleInitialize() (any, *mcperr.Error) {
	s.initialized.Store(true)
	s.logger.Info("session initialized", "auth_mode", s.auth.Mode())
	return map[string]any{
		"protocolVersion": s.cfg.Server.ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
			"prompts":   map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    s.cfg.Server.Name,
			"version": s.cfg.Server.Version,
		},
		"instructions": "Knowledge-graph tools: ingest with add_text/add_files, process with cognify, then query with search and the graph tools.",
	}, nil
}

func (s *Server) handleToolsList() (any, *mcperr.Error) {
	defs := s.registry.List(registry.ListFilter{})
	toolList := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		toolList = append(toolList, map[string]any{
			"name":        def.Name,
			"description": def.Description,
			"inputSchema": json.RawMessage(def.InputSchemaJSON),
		})
	}
	return map[string]any{"tools": toolList}, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolCall(ctx context.Context, w io.Writer, req request) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.writeError(w, req.ID, mcperr.New(mcperr.CodeInvalidParams, "tools/call requires a tool name"), "")
		return
	}

	requestID := uuid.NewString()
	callCtx := cognee.WithRequestID(ctx, requestID)
	logger := s.logger.With("tool", params.Name, "request_id", requestID)

	tool, ok := s.registry.Get(params.Name)
	if !ok {
		s.writeError(w, req.ID, mcperr.Newf(mcperr.CodeInvalidParams, "tool not found: %s", params.Name), params.Name)
		return
	}

	if tool.Definition.RequiresAuth {
		if _, err := s.auth.Credentials(callCtx); err != nil {
			logger.Warn("credential resolution failed", "error", err)
			s.writeError(w, req.ID, mcperr.FromError(err), params.Name)
			return
		}
	}

	start := time.Now()
	result, err := s.registry.Call(callCtx, params.Name, params.Arguments)
	if err != nil {
		s.writeError(w, req.ID, pipelineError(err), params.Name)
		s.recordHistory(ctx, tool, requestID, start, time.Since(start), pipelineError(err), params.Name)
		return
	}

	if result.Err != nil {
		// Credential rejections surface as protocol errors; everything else
		// is a tool result with isError set.
		if errors.Is(result.Err, cognee.ErrUnauthorized) {
			rpcErr := mcperr.New(mcperr.CodeAuthenticationError, "upstream rejected credentials")
			s.writeError(w, req.ID, rpcErr, params.Name)
			s.recordHistory(ctx, tool, requestID, start, result.Duration, rpcErr, params.Name)
			return
		}

		execErr := mcperr.FromError(result.Err)
		s.tracker.Record(execErr.Code, result.Err.Error(), params.Name)
		s.totalErrors.Add(1)
		logger.Warn("tool execution failed", "error", result.Err, "duration", result.Duration)

		s.writeResult(w, req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": result.Err.Error()}},
			"isError": true,
		})
		s.recordHistory(ctx, tool, requestID, start, result.Duration, execErr, params.Name)
		return
	}

	logger.Debug("tool executed", "duration", result.Duration)
	s.writeResult(w, req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(result.Output)}},
		"isError": false,
	})
	s.recordHistory(ctx, tool, requestID, start, result.Duration, nil, params.Name)
}

// pipelineError maps registry pipeline failures onto protocol codes.
func pipelineError(err error) *mcperr.Error {
	switch {
	case errors.Is(err, registry.ErrToolNotFound):
		return mcperr.New(mcperr.CodeInvalidParams, err.Error())
	case errors.Is(err, registry.ErrToolDisabled):
		return mcperr.New(mcperr.CodeResourceUnavailable, err.Error())
	case errors.Is(err, registry.ErrRateLimited):
		return mcperr.New(mcperr.CodeRateLimitExceeded, err.Error())
	case errors.Is(err, registry.ErrInvalidInput):
		return mcperr.New(mcperr.CodeInvalidParams, err.Error())
	default:
		return mcperr.FromError(err)
	}
}

func (s *Server) recordHistory(ctx context.Context, tool *registry.Tool, requestID string, start time.Time, duration time.Duration, rpcErr *mcperr.Error, name string) {
	if s.history == nil {
		return
	}
	entry := &history.Entry{
		Tool:       name,
		Category:   tool.Definition.Category,
		RequestID:  requestID,
		StartedAt:  start.UTC(),
		DurationMS: duration.Milliseconds(),
		OK:         rpcErr == nil,
	}
	if rpcErr != nil {
		entry.ErrorCode = rpcErr.Code
		entry.ErrorText = rpcErr.Message
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("recording call history failed", "error", err)
	}
}

func (s *Server) writeResult(w io.Writer, id json.RawMessage, result any) {
	s.write(w, response{Jsonrpc: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w io.Writer, id json.RawMessage, rpcErr *mcperr.Error, tool string) {
	s.totalErrors.Add(1)
	s.tracker.Record(rpcErr.Code, rpcErr.Message, tool)
	s.write(w, response{Jsonrpc: "2.0", ID: id, Error: rpcErr})
}

func (s *Server) write(w io.Writer, resp response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encoding response failed", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(append(raw, '\n')); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}
