// ABOUTME: Ontology pack maps entities to concepts and reasons over class hierarchies.
// ABOUTME: Mapping and hierarchy walk the upstream ontology; reasoning runs on given premises.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/registry"
)

// OntologyPack creates the ontology reasoning pack.
func OntologyPack(client *cognee.Client) *registry.Pack {
	o := &ontologyHandlers{client: client}
	return &registry.Pack{
		ID: "ontology",
		Tools: []*registry.Tool{
			{
				Definition: registry.Definition{
					Name:            "ontology_mapping",
					Description:     "Map entities to ontology concepts with confidence scores",
					Category:        "ontology",
					InputSchemaJSON: `{"type":"object","properties":{"entities":{"type":"array","items":{"type":"string"}},"ontology_namespace":{"type":"string","default":"default"},"confidence_threshold":{"type":"number","default":0.7},"max_candidates":{"type":"integer","default":5}},"required":["entities"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: o.Mapping,
			},
			{
				Definition: registry.Definition{
					Name:            "concept_hierarchy",
					Description:     "Walk a concept's class hierarchy up, down, or both",
					Category:        "ontology",
					InputSchemaJSON: `{"type":"object","properties":{"concept_uri":{"type":"string"},"direction":{"type":"string","enum":["up","down","both"],"default":"down"},"max_depth":{"type":"integer","default":5},"include_siblings":{"type":"boolean","default":false}},"required":["concept_uri"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: o.Hierarchy,
			},
			{
				Definition: registry.Definition{
					Name:            "semantic_reasoning",
					Description:     "Apply subsumption, classification, consistency, or entailment reasoning to premises",
					Category:        "ontology",
					InputSchemaJSON: `{"type":"object","properties":{"reasoning_type":{"type":"string","enum":["subsumption","classification","consistency","entailment"]},"premises":{"type":"array","items":{"type":"string"},"description":"Statements of the form 'A subClassOf B'"}},"required":["reasoning_type","premises"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: o.Reasoning,
			},
			{
				Definition: registry.Definition{
					Name:            "relation_inference",
					Description:     "Infer relations from an entity by applying rules over graph paths",
					Category:        "ontology",
					InputSchemaJSON: `{"type":"object","properties":{"source_entity":{"type":"string"},"inference_rules":{"type":"array","items":{"type":"string"},"default":["transitivity","symmetry","inheritance"]},"max_hops":{"type":"integer","default":3},"confidence_threshold":{"type":"number","default":0.5}},"required":["source_entity"]}`,
					RequiresAuth:    true,
					RateLimitPerMin: 60,
					Timeout:         60 * time.Second,
					Enabled:         true,
				},
				Handler: o.RelationInference,
			},
		},
	}
}

type ontologyHandlers struct {
	client *cognee.Client
}

type ontologyMappingInput struct {
	Entities            []string `json:"entities"`
	OntologyNamespace   string   `json:"ontology_namespace"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	MaxCandidates       int      `json:"max_candidates"`
}

func (o *ontologyHandlers) Mapping(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := ontologyMappingInput{ConfidenceThreshold: 0.7}
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.OntologyNamespace == "" {
		in.OntologyNamespace = "default"
	}
	if in.MaxCandidates <= 0 {
		in.MaxCandidates = 5
	}

	datasetID, defaulted, err := defaultDataset(ctx, o.client, "")
	if err != nil {
		return nil, err
	}

	mappings := make([]map[string]any, 0, len(in.Entities))
	for _, entity := range in.Entities {
		expansion, err := o.client.OntologyExpand(ctx, datasetID, cognee.OntologyExpandRequest{
			Term:     entity,
			Directed: true,
		})
		if err != nil {
			mappings = append(mappings, map[string]any{
				"entity": entity,
				"error":  err.Error(),
			})
			continue
		}
		mappings = append(mappings, map[string]any{
			"entity":     entity,
			"namespace":  in.OntologyNamespace,
			"candidates": trimCandidates(expansion, in.MaxCandidates),
		})
	}

	return respond(map[string]any{
		"dataset_id":           datasetID,
		"dataset_defaulted":    defaulted,
		"confidence_threshold": in.ConfidenceThreshold,
		"mappings":             mappings,
	})
}

// trimCandidates bounds the candidate list inside an expansion result.
func trimCandidates(expansion map[string]any, max int) map[string]any {
	out := make(map[string]any, len(expansion))
	for k, v := range expansion {
		if list, ok := v.([]any); ok && len(list) > max {
			out[k] = list[:max]
			continue
		}
		out[k] = v
	}
	return out
}

type conceptHierarchyInput struct {
	ConceptURI      string `json:"concept_uri"`
	Direction       string `json:"direction"`
	MaxDepth        int    `json:"max_depth"`
	IncludeSiblings bool   `json:"include_siblings"`
}

func (o *ontologyHandlers) Hierarchy(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in conceptHierarchyInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Direction == "" {
		in.Direction = "down"
	}
	if in.MaxDepth <= 0 {
		in.MaxDepth = 5
	}

	datasetID, defaulted, err := defaultDataset(ctx, o.client, "")
	if err != nil {
		return nil, err
	}

	expansion, err := o.client.OntologyExpand(ctx, datasetID, cognee.OntologyExpandRequest{
		Term:     in.ConceptURI,
		NodeType: "class",
		Directed: in.Direction != "both",
	})
	if err != nil {
		return nil, fmt.Errorf("expanding concept: %w", err)
	}

	out := map[string]any{
		"concept_uri":       in.ConceptURI,
		"direction":         in.Direction,
		"max_depth":         in.MaxDepth,
		"dataset_id":        datasetID,
		"dataset_defaulted": defaulted,
		"hierarchy":         expansion,
	}

	if in.IncludeSiblings {
		query := fmt.Sprintf(
			"MATCH (c {uri: '%s'})-[:subClassOf]->(p)<-[:subClassOf]-(s) WHERE s <> c RETURN s LIMIT 25",
			in.ConceptURI,
		)
		siblings, err := o.client.GraphQuery(ctx, datasetID, query)
		if err != nil {
			return nil, fmt.Errorf("fetching siblings: %w", err)
		}
		out["siblings"] = siblings.Results
	}

	return respond(out)
}

type reasoningInput struct {
	ReasoningType string   `json:"reasoning_type"`
	Premises      []string `json:"premises"`
}

// parsePremises reads "A subClassOf B" statements into child→parents edges.
func parsePremises(premises []string) (map[string][]string, []string) {
	edges := make(map[string][]string)
	var malformed []string
	for _, p := range premises {
		fields := strings.Fields(p)
		if len(fields) != 3 || !strings.EqualFold(fields[1], "subClassOf") {
			malformed = append(malformed, p)
			continue
		}
		edges[fields[0]] = append(edges[fields[0]], fields[2])
	}
	return edges, malformed
}

// ancestors returns the transitive closure of superclasses for a node.
func ancestors(edges map[string][]string, node string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, parent := range edges[n] {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			out = append(out, parent)
			walk(parent)
		}
	}
	walk(node)
	sort.Strings(out)
	return out
}

// hasCycle reports whether the subclass graph contains a cycle through node.
func hasCycle(edges map[string][]string, node string) bool {
	seen := make(map[string]bool)
	var walk func(string) bool
	walk = func(n string) bool {
		for _, parent := range edges[n] {
			if parent == node {
				return true
			}
			if seen[parent] {
				continue
			}
			seen[parent] = true
			if walk(parent) {
				return true
			}
		}
		return false
	}
	return walk(node)
}

func (o *ontologyHandlers) Reasoning(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in reasoningInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	edges, malformed := parsePremises(in.Premises)
	out := map[string]any{
		"reasoning_type": in.ReasoningType,
		"premise_count":  len(in.Premises),
	}
	if len(malformed) > 0 {
		out["malformed_premises"] = malformed
	}

	switch in.ReasoningType {
	case "subsumption":
		subsumptions := make(map[string][]string, len(edges))
		for child := range edges {
			subsumptions[child] = ancestors(edges, child)
		}
		out["subsumptions"] = subsumptions
	case "classification":
		classes := make(map[string][]string, len(edges))
		for child, parents := range edges {
			direct := append([]string(nil), parents...)
			sort.Strings(direct)
			classes[child] = direct
		}
		out["direct_classes"] = classes
	case "consistency":
		var cycles []string
		for node := range edges {
			if hasCycle(edges, node) {
				cycles = append(cycles, node)
			}
		}
		sort.Strings(cycles)
		out["consistent"] = len(cycles) == 0
		out["cyclic_classes"] = cycles
	case "entailment":
		var entailed []string
		for child := range edges {
			direct := make(map[string]bool, len(edges[child]))
			for _, p := range edges[child] {
				direct[p] = true
			}
			for _, ancestor := range ancestors(edges, child) {
				if !direct[ancestor] {
					entailed = append(entailed, fmt.Sprintf("%s subClassOf %s", child, ancestor))
				}
			}
		}
		sort.Strings(entailed)
		out["entailed_statements"] = entailed
	default:
		return nil, fmt.Errorf("unknown reasoning_type %q", in.ReasoningType)
	}

	return respond(out)
}

type relationInferenceInput struct {
	SourceEntity        string   `json:"source_entity"`
	InferenceRules      []string `json:"inference_rules"`
	MaxHops             int      `json:"max_hops"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

func (o *ontologyHandlers) RelationInference(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := relationInferenceInput{ConfidenceThreshold: 0.5}
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.MaxHops <= 0 {
		in.MaxHops = 3
	}
	if len(in.InferenceRules) == 0 {
		in.InferenceRules = []string{"transitivity", "symmetry", "inheritance"}
	}

	datasetID, defaulted, err := defaultDataset(ctx, o.client, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"MATCH path=(s {id: '%s'})-[*1..%d]->(t) RETURN path LIMIT 100",
		in.SourceEntity, in.MaxHops,
	)
	resp, err := o.client.GraphQuery(ctx, datasetID, query)
	if err != nil {
		return nil, fmt.Errorf("querying relation paths: %w", err)
	}

	// Confidence decays with path length; one hop is direct evidence.
	inferred := make([]map[string]any, 0, len(resp.Results))
	for _, row := range resp.Results {
		hops := 1
		if n, ok := row["length"].(float64); ok && n >= 1 {
			hops = int(n)
		}
		confidence := 1.0 / float64(hops)
		if confidence < in.ConfidenceThreshold {
			continue
		}
		inferred = append(inferred, map[string]any{
			"path":       row,
			"hops":       hops,
			"confidence": confidence,
		})
	}

	return respond(map[string]any{
		"source_entity":        in.SourceEntity,
		"rules":                in.InferenceRules,
		"max_hops":             in.MaxHops,
		"confidence_threshold": in.ConfidenceThreshold,
		"dataset_id":           datasetID,
		"dataset_defaulted":    defaulted,
		"inferred_relations":   inferred,
	})
}
