package validation

import (
	"github.com/rendis/botforge/internal/expressions"
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

// checkVariables resolves every variable reference in message, input,
// choice, condition and api fields against the union of declared globals,
// input bindings, and api result bindings. Unresolved references are
// reported by node id and variable name.
func checkVariables(g *graph.Graph, declaredGlobals []string) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	declared := make(map[string]bool)
	for _, name := range expressions.Collect(g, declaredGlobals) {
		declared[name] = true
	}

	report := func(nodeID string, names []string) {
		for _, name := range names {
			if !declared[name] {
				result.AddErrorf(nodeID, schema.ErrCodeValidation, "unresolved variable reference %q", name)
			}
		}
	}

	for _, n := range g.Nodes {
		switch p := n.Payload.(type) {
		case graph.MessagePayload:
			report(n.ID, expressions.References(p.Text))

		case graph.InputPayload:
			report(n.ID, expressions.References(p.Prompt))

		case graph.ChoicePayload:
			report(n.ID, expressions.References(p.Prompt))

		case graph.ConditionPayload:
			idents, err := expressions.Identifiers(p.Expression)
			if err != nil {
				result.AddErrorf(n.ID, schema.ErrCodeExpression, "invalid condition expression: %s", p.Expression)
				continue
			}
			report(n.ID, idents)

		case graph.APIPayload:
			report(n.ID, expressions.References(p.URL))
			report(n.ID, expressions.References(p.Body))
			for _, v := range p.Headers {
				report(n.ID, expressions.References(v))
			}
		}
	}

	return result
}
