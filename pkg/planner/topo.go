package planner

import (
	"fmt"

	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

// layerGraph is the dependency graph restricted to the paths a plan is
// actually acting on, with group-level dependency edges expanded down to
// the run-spec paths they actually gate.
type layerGraph struct {
	edges map[pathid.Path]map[pathid.Path]struct{}
}

// buildLayerGraph resolves every run-spec's declared Dependencies (which
// may name either another run-spec or a whole group) against root, and
// keeps only the edges whose endpoints are both in actionPaths — a
// dependency on a spec untouched by this plan imposes no ordering on it.
func buildLayerGraph(root *types.Group, actionPaths map[pathid.Path]struct{}) *layerGraph {
	allRunSpecs := root.AllRunSpecs()
	allGroups := root.AllGroups()

	expand := func(p pathid.Path) []pathid.Path {
		if _, ok := allRunSpecs[p]; ok {
			return []pathid.Path{p}
		}
		if g, ok := allGroups[p]; ok {
			specs := g.AllRunSpecs()
			out := make([]pathid.Path, 0, len(specs))
			for sp := range specs {
				out = append(out, sp)
			}
			return out
		}
		return nil
	}

	lg := &layerGraph{edges: make(map[pathid.Path]map[pathid.Path]struct{})}
	for p := range actionPaths {
		lg.edges[p] = make(map[pathid.Path]struct{})
		rs, ok := allRunSpecs[p]
		if !ok {
			continue
		}
		for dep := range rs.Dependencies() {
			for _, target := range expand(dep) {
				if _, ok := actionPaths[target]; ok && target != p {
					lg.edges[p][target] = struct{}{}
				}
			}
		}
	}
	return lg
}

// layers performs a Kahn topological layering: layer 0 holds every path
// with no unresolved dependency, layer 1 holds paths whose dependencies
// are all satisfied by layer 0, and so on (spec.md section 4.7 ordering
// rule 2). Returns a "cyclic dependencies" error if a cycle prevents every
// path from being placed.
func (lg *layerGraph) layers() ([][]pathid.Path, error) {
	remaining := make(map[pathid.Path]map[pathid.Path]struct{}, len(lg.edges))
	for p, deps := range lg.edges {
		remaining[p] = make(map[pathid.Path]struct{}, len(deps))
		for d := range deps {
			remaining[p][d] = struct{}{}
		}
	}

	var out [][]pathid.Path
	for len(remaining) > 0 {
		var ready []pathid.Path
		for p, deps := range remaining {
			if len(deps) == 0 {
				ready = append(ready, p)
			}
		}
		if len(ready) == 0 {
			var stuck []pathid.Path
			for p := range remaining {
				stuck = append(stuck, p)
			}
			pathid.SortPaths(stuck)
			return nil, fmt.Errorf("cyclic dependencies: no ready path among %v", stuck)
		}
		pathid.SortPaths(ready)
		out = append(out, ready)
		for _, p := range ready {
			delete(remaining, p)
		}
		for _, deps := range remaining {
			for _, p := range ready {
				delete(deps, p)
			}
		}
	}
	return out, nil
}
