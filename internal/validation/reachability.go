package validation

import (
	"sort"

	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

// checkReachability walks the graph from the start node (BFS) and reports
// every node with no path from start as a warning. Without a start node
// the walk is skipped; the missing start is already an error.
func checkReachability(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	start := g.StartNode()
	if start == nil {
		return result
	}

	adjacent := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
	}

	reachable := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[id] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, n := range g.Nodes {
		if !reachable[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	sort.Strings(unreachable)

	for _, id := range unreachable {
		result.AddWarning(id, schema.ErrCodeValidation, "node is unreachable from start")
	}

	return result
}
