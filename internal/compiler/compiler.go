// Package compiler translates between the editable node/edge graph and the
// portable scenario document. The translation is lossless both ways except
// for canvas layout, which is UI-only state the document never carries.
package compiler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

// Meta carries the document fields that live outside the graph itself.
type Meta struct {
	BotName         string
	Token           string
	GlobalVariables []string
}

// ToScenario serializes a graph into a scenario document. The output is
// deterministic: nodes are ordered by id and transition maps marshal with
// sorted keys, so the same graph always encodes to byte-identical JSON.
func ToScenario(g *graph.Graph, meta Meta) *schema.ScenarioDocument {
	doc := &schema.ScenarioDocument{
		BotName:         meta.BotName,
		Token:           meta.Token,
		GlobalVariables: append([]string(nil), meta.GlobalVariables...),
		Nodes:           make([]schema.NodeDefinition, 0, len(g.Nodes)),
	}
	if doc.GlobalVariables == nil {
		doc.GlobalVariables = []string{}
	}

	if start := g.StartNode(); start != nil {
		doc.StartNodeID = start.ID
	}

	for _, n := range g.Nodes {
		def := encodeNode(&n)
		def.Next = transitionsFor(g, &n)
		doc.Nodes = append(doc.Nodes, def)
	}

	sort.Slice(doc.Nodes, func(i, j int) bool {
		return doc.Nodes[i].ID < doc.Nodes[j].ID
	})

	return doc
}

// transitionsFor derives a node's transition map from its outgoing edges,
// keyed by branch tag (or the single default key for unbranched kinds).
// Only the first edge per tag is kept; duplicates are a validator concern.
func transitionsFor(g *graph.Graph, n *graph.Node) map[string]string {
	var next map[string]string
	for _, e := range g.OutgoingEdges(n.ID) {
		tag := e.SourceHandle
		if tag == "" {
			tag = schema.BranchDefault
		}
		if next == nil {
			next = make(map[string]string)
		}
		if _, dup := next[tag]; !dup {
			next[tag] = e.Target
		}
	}
	return next
}

func encodeNode(n *graph.Node) schema.NodeDefinition {
	def := schema.NodeDefinition{ID: n.ID, Kind: n.Kind, Label: n.Payload.Label()}

	switch p := n.Payload.(type) {
	case graph.MessagePayload:
		def.Text = p.Text
	case graph.InputPayload:
		def.Prompt = p.Prompt
		def.Variable = p.Variable
	case graph.ConditionPayload:
		def.Expression = p.Expression
	case graph.ChoicePayload:
		def.Prompt = p.Prompt
		def.Options = append([]schema.ChoiceOption(nil), p.Options...)
	case graph.APIPayload:
		def.URL = p.URL
		def.Method = p.Method
		if len(p.Headers) > 0 {
			def.Headers = make(map[string]string, len(p.Headers))
			for k, v := range p.Headers {
				def.Headers[k] = v
			}
		}
		def.Body = p.Body
		def.ResultVariable = p.ResultVariable
		def.ResultFilter = p.ResultFilter
		def.RetryCount = p.RetryCount
	}

	return def
}

// FromScenario reconstructs a graph from a scenario document: one node per
// serialized entry, one edge per transition. It fails with a
// MALFORMED_DOCUMENT error on an unknown kind, a missing required payload
// field, or a transition referencing an unknown node — it never silently
// drops data and never returns a partially built graph. Since the document
// carries no coordinates, nodes get a deterministic grid layout.
func FromScenario(doc *schema.ScenarioDocument) (*graph.Graph, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDocument, "document is empty")
	}

	known := make(map[string]bool, len(doc.Nodes))
	for _, def := range doc.Nodes {
		if def.ID == "" {
			return nil, schema.NewError(schema.ErrCodeMalformedDocument, "node without id")
		}
		if known[def.ID] {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
				"duplicate node id %q", def.ID)
		}
		known[def.ID] = true
	}

	g := &graph.Graph{
		Nodes: make([]graph.Node, 0, len(doc.Nodes)),
	}

	for i, def := range doc.Nodes {
		payload, err := decodePayload(&def)
		if err != nil {
			return nil, err
		}

		// Grid layout: four columns, left to right, top to bottom.
		col, row := i%4, i/4
		g.Nodes = append(g.Nodes, graph.Node{
			ID:      def.ID,
			Kind:    def.Kind,
			Payload: payload,
			X:       80 + float64(col)*240,
			Y:       80 + float64(row)*160,
		})

		tags := make([]string, 0, len(def.Next))
		for tag := range def.Next {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		for _, tag := range tags {
			target := def.Next[tag]
			if !known[target] {
				return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
					"transition %q references unknown node %q", tag, target).WithNode(def.ID)
			}
			handle, err := edgeHandle(&def, tag)
			if err != nil {
				return nil, err
			}
			g.Edges = append(g.Edges, graph.Edge{
				ID:           fmt.Sprintf("e:%s:%s->%s", def.ID, tag, target),
				Source:       def.ID,
				SourceHandle: handle,
				Target:       target,
			})
		}
	}

	return g, nil
}

// edgeHandle maps a transition key back to an edge's source handle. For
// branched kinds the key is the branch tag verbatim; unbranched kinds only
// accept the default key and produce an untagged edge.
func edgeHandle(def *schema.NodeDefinition, tag string) (string, error) {
	if graph.Branched(def.Kind) {
		return tag, nil
	}
	if tag != schema.BranchDefault {
		return "", schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"%s node does not support branch tag %q", def.Kind, tag).WithNode(def.ID)
	}
	return "", nil
}

func decodePayload(def *schema.NodeDefinition) (graph.Payload, error) {
	missing := func(field string) error {
		return schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"%s node is missing required field %q", def.Kind, field).WithNode(def.ID)
	}

	switch def.Kind {
	case schema.KindStart:
		return graph.StartPayload{Name: def.Label}, nil

	case schema.KindFinal:
		return graph.FinalPayload{Name: def.Label}, nil

	case schema.KindMessage:
		if def.Text == "" {
			return nil, missing("text")
		}
		return graph.MessagePayload{Name: def.Label, Text: def.Text}, nil

	case schema.KindInput:
		if def.Prompt == "" {
			return nil, missing("prompt")
		}
		if strings.TrimSpace(def.Variable) == "" {
			return nil, missing("variable")
		}
		return graph.InputPayload{Name: def.Label, Prompt: def.Prompt, Variable: def.Variable}, nil

	case schema.KindCondition:
		if strings.TrimSpace(def.Expression) == "" {
			return nil, missing("expression")
		}
		return graph.ConditionPayload{Name: def.Label, Expression: def.Expression}, nil

	case schema.KindChoice:
		if def.Prompt == "" {
			return nil, missing("prompt")
		}
		if len(def.Options) == 0 {
			return nil, missing("options")
		}
		seen := make(map[string]bool, len(def.Options))
		for _, opt := range def.Options {
			if opt.ID == "" {
				return nil, missing("options[].id")
			}
			if seen[opt.ID] {
				return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
					"choice node declares duplicate option id %q", opt.ID).WithNode(def.ID)
			}
			seen[opt.ID] = true
		}
		return graph.ChoicePayload{
			Name:    def.Label,
			Prompt:  def.Prompt,
			Options: append([]schema.ChoiceOption(nil), def.Options...),
		}, nil

	case schema.KindAPI:
		if def.URL == "" {
			return nil, missing("url")
		}
		if !schema.AllowedMethod(def.Method) {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
				"api node has unsupported method %q", def.Method).WithNode(def.ID)
		}
		if strings.TrimSpace(def.ResultVariable) == "" {
			return nil, missing("resultVariable")
		}
		if def.RetryCount < 0 {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
				"api node has negative retryCount %d", def.RetryCount).WithNode(def.ID)
		}
		var headers map[string]string
		if len(def.Headers) > 0 {
			headers = make(map[string]string, len(def.Headers))
			for k, v := range def.Headers {
				headers[k] = v
			}
		}
		return graph.APIPayload{
			Name:           def.Label,
			URL:            def.URL,
			Method:         def.Method,
			Headers:        headers,
			Body:           def.Body,
			ResultVariable: def.ResultVariable,
			ResultFilter:   def.ResultFilter,
			RetryCount:     def.RetryCount,
		}, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"unknown node kind %q", def.Kind).WithNode(def.ID)
	}
}

// Encode renders a document as formatted JSON, the export file format.
// Encoding is deterministic: equal documents produce identical bytes.
func Encode(doc *schema.ScenarioDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"encode scenario: %s", err.Error()).WithCause(err)
	}
	return append(data, '\n'), nil
}

// Decode parses raw JSON into a scenario document without interpreting it.
func Decode(raw []byte) (*schema.ScenarioDocument, error) {
	var doc schema.ScenarioDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"parse scenario JSON: %s", err.Error()).WithCause(err)
	}
	return &doc, nil
}

// ExportFileName is the conventional name for an exported scenario file.
func ExportFileName(botName string) string {
	name := strings.TrimSpace(botName)
	if name == "" {
		name = "bot"
	}
	return name + "-bot-scenario.json"
}
