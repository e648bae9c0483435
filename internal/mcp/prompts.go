// ABOUTME: MCP prompt handlers: analyze_data and create_summary.
// ABOUTME: Prompts render user-role messages that chain the knowledge-graph tools.

package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/2389/cognee-mcp/internal/mcperr"
)

func (s *Server) handlePromptsList() (any, *mcperr.Error) {
	return map[string]any{
		"prompts": []map[string]any{
			{
				"name":        "analyze_data",
				"description": "Analyze the contents of a dataset using the graph tools",
				"arguments": []map[string]any{
					{"name": "dataset_name", "description": "Dataset to analyze", "required": true},
					{"name": "focus", "description": "Optional aspect to focus on", "required": false},
				},
			},
			{
				"name":        "create_summary",
				"description": "Summarize knowledge about a topic from the graph",
				"arguments": []map[string]any{
					{"name": "topic", "description": "Topic to summarize", "required": true},
					{"name": "detail_level", "description": "brief, standard, or comprehensive", "required": false},
				},
			},
		},
	}, nil
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handlePromptsGet(params json.RawMessage) (any, *mcperr.Error) {
	var p promptsGetParams
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "prompts/get requires a prompt name")
	}

	switch p.Name {
	case "analyze_data":
		dataset := p.Arguments["dataset_name"]
		if dataset == "" {
			return nil, mcperr.New(mcperr.CodeInvalidParams, "analyze_data requires dataset_name")
		}
		text := fmt.Sprintf(
			"Analyze the dataset %q. Start with dataset_stats and graph_counts_by_label to understand its shape, then use search and graph_query to explore the content.",
			dataset,
		)
		if focus := p.Arguments["focus"]; focus != "" {
			text += fmt.Sprintf(" Focus the analysis on: %s.", focus)
		}
		return promptResult("Dataset analysis walkthrough", text), nil

	case "create_summary":
		topic := p.Arguments["topic"]
		if topic == "" {
			return nil, mcperr.New(mcperr.CodeInvalidParams, "create_summary requires topic")
		}
		detail := p.Arguments["detail_level"]
		if detail == "" {
			detail = "standard"
		}
		text := fmt.Sprintf(
			"Create a %s summary of %q. Use search with search_type summaries first, then graph_completion for connections the summaries miss. Cite which dataset each finding came from.",
			detail, topic,
		)
		return promptResult("Topic summary walkthrough", text), nil

	default:
		return nil, mcperr.Newf(mcperr.CodeInvalidParams, "unknown prompt: %s", p.Name)
	}
}

func promptResult(description, text string) map[string]any {
	return map[string]any{
		"description": description,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": map[string]any{"type": "text", "text": text},
			},
		},
	}
}
