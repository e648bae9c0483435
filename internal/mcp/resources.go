// ABOUTME: MCP resource handlers: sanitized config and server/tool statistics.
// ABOUTME: All resources render as application/json text contents.

package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/cognee-mcp/internal/mcperr"
)

const (
	resourceSettings = "config://settings"
	resourceServer   = "stats://server"
	resourceTools    = "stats://tools"
)

func (s *Server) handleResourcesList() (any, *mcperr.Error) {
	return map[string]any{
		"resources": []map[string]any{
			{
				"uri":         resourceSettings,
				"name":        "Server Settings",
				"description": "Active configuration with secrets masked",
				"mimeType":    "application/json",
			},
			{
				"uri":         resourceServer,
				"name":        "Server Statistics",
				"description": "Uptime, request counters, error summary",
				"mimeType":    "application/json",
			},
			{
				"uri":         resourceTools,
				"name":        "Tool Statistics",
				"description": "Per-tool call, error, and latency figures",
				"mimeType":    "application/json",
			},
		},
	}, nil
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *mcperr.Error) {
	var p resourceReadParams
	if err := json.Unmarshal(params, &p); err != nil || p.URI == "" {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "resources/read requires a uri")
	}

	var payload any
	switch p.URI {
	case resourceSettings:
		payload = s.cfg.Sanitized()
	case resourceServer:
		payload = s.serverStats(ctx)
	case resourceTools:
		payload = map[string]any{"tools": s.registry.Info()}
	default:
		return nil, mcperr.Newf(mcperr.CodeResourceNotFound, "unknown resource: %s", p.URI)
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, mcperr.New(mcperr.CodeInternalError, "encoding resource failed")
	}

	return map[string]any{
		"contents": []map[string]any{
			{
				"uri":      p.URI,
				"mimeType": "application/json",
				"text":     string(text),
			},
		},
	}, nil
}

func (s *Server) serverStats(ctx context.Context) map[string]any {
	total := s.totalRequests.Load()
	errs := s.totalErrors.Load()
	successRate := 1.0
	if total > 0 {
		successRate = float64(total-errs) / float64(total)
	}

	stats := map[string]any{
		"uptime":         time.Since(s.started).String(),
		"total_requests": total,
		"total_errors":   errs,
		"success_rate":   successRate,
		"initialized":    s.initialized.Load(),
		"auth_mode":      s.auth.Mode(),
		"registry":       s.registry.Snapshot(),
		"errors":         s.tracker.Snapshot(),
	}

	if s.history != nil {
		if sum, err := s.history.Summarize(ctx); err == nil {
			stats["history"] = sum
		}
	}
	return stats
}
