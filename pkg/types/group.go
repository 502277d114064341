package types

import (
	"fmt"
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
)

// Group is a hierarchical namespace node: a Path plus child groups, apps
// and pods at that level, and a set of dependency edges (spec.md section
// 3, "Group"). A root group lives at pathid.Root and carries the global
// version.
type Group struct {
	Path         pathid.Path
	Groups       map[string]*Group // keyed by immediate child id (Base())
	Apps         map[string]*ApplicationSpec
	Pods         map[string]*PodSpec
	Dependencies map[pathid.Path]struct{}
	Version      time.Time
}

// NewGroup returns an empty group at the given path.
func NewGroup(p pathid.Path) *Group {
	return &Group{
		Path:         p,
		Groups:       make(map[string]*Group),
		Apps:         make(map[string]*ApplicationSpec),
		Pods:         make(map[string]*PodSpec),
		Dependencies: make(map[pathid.Path]struct{}),
	}
}

// Validate checks the two group invariants of spec.md section 3: no two
// entities share an immediate id, and no cycles in the dependency graph
// over the transitive closure of apps+pods+groups.
func (g *Group) Validate() error {
	if err := g.validateNoIDCollisions(); err != nil {
		return err
	}
	return g.transitiveDependencyGraph().checkAcyclic()
}

func (g *Group) validateNoIDCollisions() error {
	seen := make(map[string]string)
	check := func(kind, id string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("id collision at %s: %s and %s share id %q", g.Path, prev, kind, id)
		}
		seen[id] = kind
		return nil
	}
	for id := range g.Apps {
		if err := check("app", id); err != nil {
			return err
		}
	}
	for id := range g.Pods {
		if err := check("pod", id); err != nil {
			return err
		}
	}
	for id := range g.Groups {
		if err := check("group", id); err != nil {
			return err
		}
	}
	for _, child := range g.Groups {
		if err := child.validateNoIDCollisions(); err != nil {
			return err
		}
	}
	return nil
}

// AllRunSpecs returns a Path -> *RunSpec map of every descendant app and
// pod, transitively.
func (g *Group) AllRunSpecs() map[pathid.Path]*RunSpec {
	out := make(map[pathid.Path]*RunSpec)
	g.collectRunSpecs(out)
	return out
}

func (g *Group) collectRunSpecs(out map[pathid.Path]*RunSpec) {
	for id, app := range g.Apps {
		p := pathid.Canonicalize(g.Path, id)
		out[p] = &RunSpec{Path: p, Kind: KindApplication, App: app}
	}
	for id, pod := range g.Pods {
		p := pathid.Canonicalize(g.Path, id)
		out[p] = &RunSpec{Path: p, Kind: KindPod, Pod: pod}
	}
	for _, child := range g.Groups {
		child.collectRunSpecs(out)
	}
}

// AllGroups returns a Path -> *Group map of this group and every
// descendant group, transitively.
func (g *Group) AllGroups() map[pathid.Path]*Group {
	out := make(map[pathid.Path]*Group)
	g.collectGroups(out)
	return out
}

func (g *Group) collectGroups(out map[pathid.Path]*Group) {
	out[g.Path] = g
	for _, child := range g.Groups {
		child.collectGroups(out)
	}
}

type dependencyGraph struct {
	edges map[pathid.Path]map[pathid.Path]struct{}
}

// transitiveDependencyGraph builds the dependency graph over the
// transitive closure of apps+pods+groups (spec.md section 3 invariant b).
func (g *Group) transitiveDependencyGraph() *dependencyGraph {
	dg := &dependencyGraph{edges: make(map[pathid.Path]map[pathid.Path]struct{})}
	add := func(from pathid.Path, deps map[pathid.Path]struct{}) {
		if dg.edges[from] == nil {
			dg.edges[from] = make(map[pathid.Path]struct{})
		}
		for d := range deps {
			dg.edges[from][d] = struct{}{}
		}
	}
	for p, rs := range g.AllRunSpecs() {
		add(p, rs.Dependencies())
	}
	for p, grp := range g.AllGroups() {
		add(p, grp.Dependencies)
	}
	return dg
}

// checkAcyclic performs a DFS cycle check, returning a "cyclic
// dependencies" error (spec.md section 4.7 planning rule 2) if one exists.
func (dg *dependencyGraph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[pathid.Path]int)
	var visit func(pathid.Path) error
	visit = func(n pathid.Path) error {
		switch color[n] {
		case gray:
			return fmt.Errorf("cyclic dependencies: cycle through %s", n)
		case black:
			return nil
		}
		color[n] = gray
		for next := range dg.edges[n] {
			if err := visit(next); err != nil {
				return err
			}
		}
		color[n] = black
		return nil
	}
	for n := range dg.edges {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
