// ABOUTME: Thread-safe registry for tool packs and the tools/call pipeline.
// ABOUTME: Handles lookup, enablement, rate limiting, validation, timeouts, and stats.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/cognee-mcp/internal/ratelimit"
)

// ErrToolNotFound indicates the named tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolDisabled indicates the tool exists but is disabled.
var ErrToolDisabled = errors.New("tool disabled")

// ErrToolCollision indicates a tool name already exists from another pack.
var ErrToolCollision = errors.New("tool name collision")

// ErrRateLimited indicates the tool's per-minute call budget is spent.
var ErrRateLimited = errors.New("tool rate limit exceeded")

// ErrInvalidInput indicates the arguments failed schema validation.
var ErrInvalidInput = errors.New("invalid input")

// Definition describes a registered tool.
type Definition struct {
	Name            string
	Description     string
	Category        string
	InputSchemaJSON string
	RequiresAuth    bool
	RateLimitPerMin int
	Timeout         time.Duration
	Enabled         bool
}

// Handler executes a tool against validated raw JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Pack groups tools by category for registration.
type Pack struct {
	ID    string
	Tools []*Tool
}

// Stats tracks per-tool call statistics.
type Stats struct {
	Calls         int64         `json:"calls"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"-"`
	MeanDuration  time.Duration `json:"-"`
	LastCalled    time.Time     `json:"last_called"`
}

type entry struct {
	tool   *Tool
	packID string
	schema *inputSchema
	stats  Stats
}

// Registry maintains the registered tools and runs the call pipeline.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	limiter *ratelimit.Window
	logger  *slog.Logger

	defaultRateLimit int
	defaultTimeout   time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaults sets the fallback rate limit and timeout applied to tools
// whose definitions leave them unset.
func WithDefaults(rateLimitPerMin int, timeout time.Duration) Option {
	return func(r *Registry) {
		r.defaultRateLimit = rateLimitPerMin
		r.defaultTimeout = timeout
	}
}

// New creates an empty Registry.
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:            make(map[string]*entry),
		limiter:          ratelimit.New(time.Minute),
		logger:           logger,
		defaultRateLimit: 60,
		defaultTimeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterPack validates and stores a pack and its tools.
// Returns ErrToolCollision if any tool name is already registered.
func (r *Registry) RegisterPack(pack *Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range pack.Tools {
		if existing, exists := r.tools[tool.Definition.Name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
				ErrToolCollision, tool.Definition.Name, existing.packID)
		}
	}

	for _, tool := range pack.Tools {
		schema, err := parseSchema(tool.Definition.InputSchemaJSON)
		if err != nil {
			return fmt.Errorf("tool '%s': parsing input schema: %w", tool.Definition.Name, err)
		}
		r.tools[tool.Definition.Name] = &entry{
			tool:   tool,
			packID: pack.ID,
			schema: schema,
		}
	}

	r.logger.Info("pack registered",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.tools),
	)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// ListFilter narrows List results.
type ListFilter struct {
	Category        string
	IncludeDisabled bool
}

// List returns tool definitions sorted by name. Disabled tools are omitted
// unless the filter includes them.
func (r *Registry) List(filter ListFilter) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, e := range r.tools {
		d := e.tool.Definition
		if !d.Enabled && !filter.IncludeDisabled {
			continue
		}
		if filter.Category != "" && d.Category != filter.Category {
			continue
		}
		defs = append(defs, d)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// SetEnabled enables or disables a tool by name.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	e.tool.Definition.Enabled = enabled
	return nil
}

// CallResult is the outcome of a tool execution that made it through the
// pipeline. Err carries handler failures; pipeline failures are returned
// as the Call error instead.
type CallResult struct {
	Output   json.RawMessage
	Duration time.Duration
	Err      error
}

// Call runs the tools/call pipeline: lookup, enabled check, rate limit,
// input validation, then execution under the tool's timeout.
func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) (*CallResult, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	var def Definition
	if ok {
		// Copied under the lock: SetEnabled mutates the definition.
		def = e.tool.Definition
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if !def.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}

	limit := def.RateLimitPerMin
	if limit == 0 {
		limit = r.defaultRateLimit
	}
	if !r.limiter.Allow(name, limit) {
		return nil, fmt.Errorf("%w: %s allows %d calls per minute", ErrRateLimited, name, limit)
	}

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := e.schema.validate(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := e.tool.Handler(execCtx, input)
	duration := time.Since(start)

	if err != nil && execCtx.Err() != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("tool %s timed out after %s: %w", name, timeout, context.DeadlineExceeded)
	}

	r.recordCall(name, duration, err != nil)

	return &CallResult{Output: output, Duration: duration, Err: err}, nil
}

// recordCall updates the per-tool stats under the write lock.
func (r *Registry) recordCall(name string, duration time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tools[name]
	if !ok {
		return
	}
	e.stats.Calls++
	if failed {
		e.stats.Errors++
	}
	e.stats.TotalDuration += duration
	e.stats.MeanDuration = e.stats.TotalDuration / time.Duration(e.stats.Calls)
	e.stats.LastCalled = time.Now().UTC()
}

// ToolInfo is one row in the registry snapshot.
type ToolInfo struct {
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Enabled        bool      `json:"enabled"`
	RequiresAuth   bool      `json:"requires_auth"`
	Calls          int64     `json:"calls"`
	Errors         int64     `json:"errors"`
	MeanDurationMS int64     `json:"mean_duration_ms"`
	LastCalled     time.Time `json:"last_called,omitempty"`
}

// Info returns a snapshot of every registered tool with its stats,
// sorted by name.
func (r *Registry) Info() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, e := range r.tools {
		infos = append(infos, ToolInfo{
			Name:           e.tool.Definition.Name,
			Category:       e.tool.Definition.Category,
			Enabled:        e.tool.Definition.Enabled,
			RequiresAuth:   e.tool.Definition.RequiresAuth,
			Calls:          e.stats.Calls,
			Errors:         e.stats.Errors,
			MeanDurationMS: e.stats.MeanDuration.Milliseconds(),
			LastCalled:     e.stats.LastCalled,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Summary aggregates registry state for stats://server.
type Summary struct {
	TotalTools   int            `json:"total_tools"`
	EnabledTools int            `json:"enabled_tools"`
	ByCategory   map[string]int `json:"by_category"`
	TotalCalls   int64          `json:"total_calls"`
	TotalErrors  int64          `json:"total_errors"`
}

// Snapshot builds the aggregate summary.
func (r *Registry) Snapshot() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{ByCategory: make(map[string]int)}
	for _, e := range r.tools {
		s.TotalTools++
		if e.tool.Definition.Enabled {
			s.EnabledTools++
		}
		s.ByCategory[e.tool.Definition.Category]++
		s.TotalCalls += e.stats.Calls
		s.TotalErrors += e.stats.Errors
	}
	return s
}
