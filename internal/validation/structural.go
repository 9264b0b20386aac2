package validation

import (
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

// checkStructure verifies node/edge topology: start uniqueness, branch
// exactness on condition and choice nodes, single-handle discipline, and
// edge referential integrity.
func checkStructure(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	starts := 0
	finals := 0
	for _, n := range g.Nodes {
		nodeIDs[n.ID] = true
		switch n.Kind {
		case schema.KindStart:
			starts++
		case schema.KindFinal:
			finals++
		}
	}

	switch {
	case starts == 0:
		result.AddError("", schema.ErrCodeValidation, "missing start node")
	case starts > 1:
		result.AddErrorf("", schema.ErrCodeValidation, "graph has %d start nodes, expected exactly one", starts)
	}
	if finals == 0 {
		result.AddWarning("", schema.ErrCodeValidation, "graph has no final node; conversations end only at dead ends")
	}

	// Edge referential integrity. Edges pointing at ghost nodes can be
	// produced by partially applied UI mutations, so this is checked even
	// though the model invariants make it unlikely.
	for _, e := range g.Edges {
		if !nodeIDs[e.Source] {
			result.AddErrorf("", schema.ErrCodeValidation, "edge %s references nonexistent source node %q", e.ID, e.Source)
		}
		if !nodeIDs[e.Target] {
			result.AddErrorf("", schema.ErrCodeValidation, "edge %s references nonexistent target node %q", e.ID, e.Target)
		}
	}

	for i := range g.Nodes {
		checkNodeBranches(g, &g.Nodes[i], result)
	}

	return result
}

func checkNodeBranches(g *graph.Graph, n *graph.Node, result *schema.ValidationResult) {
	outgoing := g.OutgoingEdges(n.ID)

	switch n.Kind {
	case schema.KindCondition:
		tagged := tagCounts(outgoing)
		for _, want := range []string{schema.BranchTrue, schema.BranchFalse} {
			switch tagged[want] {
			case 0:
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "condition node is missing its %q branch", want)
			case 1:
			default:
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "condition node has %d %q branches, expected one", tagged[want], want)
			}
		}
		for tag := range tagged {
			if tag != schema.BranchTrue && tag != schema.BranchFalse {
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "condition node has dangling branch %q", tag)
			}
		}

	case schema.KindChoice:
		p := n.Payload.(graph.ChoicePayload)
		tagged := tagCounts(outgoing)
		declared := make(map[string]bool, len(p.Options))
		for _, opt := range p.Options {
			declared[opt.ID] = true
			switch tagged[opt.ID] {
			case 0:
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "unreached option %q (no outgoing edge)", opt.ID)
			case 1:
			default:
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "option %q has %d outgoing edges, expected one", opt.ID, tagged[opt.ID])
			}
		}
		for tag := range tagged {
			if !declared[tag] {
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "dangling branch %q (no matching option)", tag)
			}
		}

	case schema.KindFinal:
		if len(outgoing) > 0 {
			result.AddErrorf(n.ID, schema.ErrCodeValidation, "final node has %d outgoing edges, expected none", len(outgoing))
		}

	default:
		// start, message, input, api: a single untagged handle.
		if len(outgoing) > 1 {
			result.AddErrorf(n.ID, schema.ErrCodeValidation, "%s node has %d outgoing edges, expected at most one", n.Kind, len(outgoing))
		}
		for _, e := range outgoing {
			if e.SourceHandle != "" {
				result.AddErrorf(n.ID, schema.ErrCodeValidation, "%s node has unexpected branch tag %q", n.Kind, e.SourceHandle)
			}
		}
	}
}

func tagCounts(edges []graph.Edge) map[string]int {
	counts := make(map[string]int, len(edges))
	for _, e := range edges {
		counts[e.SourceHandle]++
	}
	return counts
}
