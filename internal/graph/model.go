// Package graph holds the in-memory, author-editable representation of a
// bot: typed nodes connected by tagged edges. It is the substrate the
// compiler, validator and variable resolver operate on.
package graph

import (
	"github.com/google/uuid"

	"github.com/rendis/botforge/pkg/schema"
)

// Node is a single block of the bot graph. Kind is immutable after
// creation; changing a node's kind is delete + recreate at the model level.
// X/Y are canvas coordinates — UI-only state, excluded from the scenario
// document.
type Node struct {
	ID      string
	Kind    schema.NodeKind
	Payload Payload
	X, Y    float64
}

// Edge connects two nodes. SourceHandle carries the branch tag for
// condition ("true"/"false") and choice (option id) sources, and is empty
// for single-handle kinds.
type Edge struct {
	ID           string
	Source       string
	SourceHandle string
	Target       string
}

// Graph is a set of nodes and edges with unique ids.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Payload is the closed union of per-kind node data. Exactly one concrete
// payload type exists per kind, so invalid kind/payload combinations are
// unrepresentable at construction time.
type Payload interface {
	Kind() schema.NodeKind
	Label() string
}

type StartPayload struct {
	Name string
}

type FinalPayload struct {
	Name string
}

type MessagePayload struct {
	Name string
	Text string // may embed {{variable}} references
}

type InputPayload struct {
	Name     string
	Prompt   string
	Variable string // declares an input-bound variable
}

type ConditionPayload struct {
	Name       string
	Expression string
}

type ChoicePayload struct {
	Name    string
	Prompt  string
	Options []schema.ChoiceOption
}

type APIPayload struct {
	Name           string
	URL            string
	Method         string
	Headers        map[string]string
	Body           string
	ResultVariable string // declares an api-bound variable
	ResultFilter   string // optional jq filter applied to the response
	RetryCount     int
}

func (p StartPayload) Kind() schema.NodeKind     { return schema.KindStart }
func (p FinalPayload) Kind() schema.NodeKind     { return schema.KindFinal }
func (p MessagePayload) Kind() schema.NodeKind   { return schema.KindMessage }
func (p InputPayload) Kind() schema.NodeKind     { return schema.KindInput }
func (p ConditionPayload) Kind() schema.NodeKind { return schema.KindCondition }
func (p ChoicePayload) Kind() schema.NodeKind    { return schema.KindChoice }
func (p APIPayload) Kind() schema.NodeKind       { return schema.KindAPI }

func (p StartPayload) Label() string     { return p.Name }
func (p FinalPayload) Label() string     { return p.Name }
func (p MessagePayload) Label() string   { return p.Name }
func (p InputPayload) Label() string     { return p.Name }
func (p ConditionPayload) Label() string { return p.Name }
func (p ChoicePayload) Label() string    { return p.Name }
func (p APIPayload) Label() string       { return p.Name }

// NewID returns a fresh opaque node/edge identifier.
func NewID() string {
	return uuid.NewString()
}

// NewNode creates a node with a fresh id. The kind is derived from the
// payload, keeping the two in lockstep.
func NewNode(payload Payload, x, y float64) Node {
	return Node{ID: NewID(), Kind: payload.Kind(), Payload: payload, X: x, Y: y}
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges whose source is the given node id, in
// declaration order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the unique start node, or nil when there is none
// (validation reports zero or multiple start nodes as errors).
func (g *Graph) StartNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Kind == schema.KindStart {
			return &g.Nodes[i]
		}
	}
	return nil
}

// BranchTags returns the set of branch tags the node's kind declares:
// true/false for conditions, option ids for choices, nil for single-handle
// kinds.
func BranchTags(n *Node) []string {
	switch p := n.Payload.(type) {
	case ConditionPayload:
		return []string{schema.BranchTrue, schema.BranchFalse}
	case ChoicePayload:
		tags := make([]string, 0, len(p.Options))
		for _, opt := range p.Options {
			tags = append(tags, opt.ID)
		}
		return tags
	default:
		return nil
	}
}

// Branched reports whether the node's kind routes through tagged branches.
func Branched(kind schema.NodeKind) bool {
	return kind == schema.KindCondition || kind == schema.KindChoice
}
