// Package validation is the static analysis pass over a bot graph. It is a
// pure function layer: no I/O, no mutation, cheap enough to run on every
// keystroke for live feedback as well as before persistence.
package validation

import (
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

// Validate runs every check over the graph and collects all findings.
// Checks are independent and never short-circuit, so a single run surfaces
// every problem. declaredGlobals are the document-level variable names;
// input and api bindings are read from the graph itself.
//
// Policy (deliberate, see DESIGN.md): unreachable nodes and a missing
// final node are warnings — they are surfaced but never block save.
func Validate(g *graph.Graph, declaredGlobals []string) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	result.Merge(checkStructure(g))
	result.Merge(checkVariables(g, declaredGlobals))
	result.Merge(checkReachability(g))

	return result
}
