// ABOUTME: Minimal JSON Schema validation for tool inputs.
// ABOUTME: Checks required properties, primitive types, and enum membership.

package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// inputSchema is the subset of JSON Schema the tool definitions use:
// an object with typed properties, required lists, and enums.
type inputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*propertySchema `json:"properties"`
	Required   []string                   `json:"required"`
}

type propertySchema struct {
	Type string `json:"type"`
	Enum []any  `json:"enum"`
}

// parseSchema decodes a tool's input schema. An empty schema string means
// the tool takes no arguments and anything object-shaped passes.
func parseSchema(raw string) (*inputSchema, error) {
	if strings.TrimSpace(raw) == "" {
		return &inputSchema{Type: "object"}, nil
	}
	var s inputSchema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	if s.Type != "" && s.Type != "object" {
		return nil, fmt.Errorf("unsupported schema root type %q", s.Type)
	}
	return &s, nil
}

// validate checks a raw JSON argument document against the schema.
func (s *inputSchema) validate(input json.RawMessage) error {
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			continue
		}
		if err := prop.check(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p *propertySchema) check(name string, value any) error {
	if value == nil {
		return nil
	}

	switch p.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q must be a string", name)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("field %q must be a number", name)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("field %q must be an integer", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean", name)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field %q must be an array", name)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("field %q must be an object", name)
		}
	}

	if len(p.Enum) > 0 {
		for _, allowed := range p.Enum {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("field %q must be one of %v", name, p.Enum)
	}
	return nil
}
