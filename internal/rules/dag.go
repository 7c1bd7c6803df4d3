package rules

import "github.com/Dom110/KI-AutoAgent-sub003/internal/model"

// FindDependencyCycle runs a coloring DFS over the step dependency graph and
// returns the first cycle found in forward order, or nil. Shared colour and
// parent maps are reused across the whole walk so large graphs are not
// re-copied per call.
func FindDependencyCycle(steps []model.PlanStep) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // in current path
		black = 2 // finished
	)

	deps := make(map[string][]string, len(steps))
	ids := make([]string, 0, len(steps))
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		ids = append(ids, s.ID)
		known[s.ID] = true
	}
	for _, s := range steps {
		for _, d := range s.DependsOn {
			if known[d] {
				deps[s.ID] = append(deps[s.ID], d)
			}
		}
	}

	color := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))

	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range deps[node] {
			if color[dep] == gray {
				// back-edge within the current path: reconstruct the cycle
				cyclePath = []string{dep}
				current := node
				for current != dep {
					cyclePath = append(cyclePath, current)
					current = parent[current]
				}
				cyclePath = append(cyclePath, dep)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if dfs(id) {
				return cyclePath
			}
		}
	}
	return nil
}
