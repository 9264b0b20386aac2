package expressions

import (
	"sort"
	"strings"

	"github.com/rendis/botforge/internal/graph"
)

// Collect returns every variable name a graph declares: the globals plus
// each input node's binding and each api node's result binding. Names are
// case-sensitive, deduplicated, blank names dropped, and the result is
// sorted lexicographically for deterministic display. Sorting is a display
// aid only; it does not preserve global declaration order.
func Collect(g *graph.Graph, globals []string) []string {
	seen := make(map[string]bool)
	var names []string

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for _, name := range globals {
		add(name)
	}
	for _, n := range g.Nodes {
		switch p := n.Payload.(type) {
		case graph.InputPayload:
			add(p.Variable)
		case graph.APIPayload:
			add(p.ResultVariable)
		}
	}

	sort.Strings(names)
	return names
}
