package types

import (
	"testing"

	"github.com/steward-sh/steward/pkg/pathid"
)

func TestGroupValidateRejectsIDCollision(t *testing.T) {
	g := NewGroup(pathid.Root)
	g.Apps["web"] = &ApplicationSpec{Instances: 1}
	g.Pods["web"] = &PodSpec{Instances: 1}

	if err := g.Validate(); err == nil {
		t.Fatalf("expected an id collision error between app and pod named %q", "web")
	}
}

func TestGroupValidateRejectsCyclicDependencies(t *testing.T) {
	g := NewGroup(pathid.Root)
	g.Apps["a"] = &ApplicationSpec{Instances: 1, Dependencies: map[pathid.Path]struct{}{pathid.Clean("/b"): {}}}
	g.Apps["b"] = &ApplicationSpec{Instances: 1, Dependencies: map[pathid.Path]struct{}{pathid.Clean("/a"): {}}}

	if err := g.Validate(); err == nil {
		t.Fatalf("expected a cyclic dependency error")
	}
}

func TestGroupValidateAcceptsAcyclicTree(t *testing.T) {
	g := NewGroup(pathid.Root)
	g.Apps["a"] = &ApplicationSpec{Instances: 1}
	g.Apps["b"] = &ApplicationSpec{Instances: 1, Dependencies: map[pathid.Path]struct{}{pathid.Clean("/a"): {}}}
	child := NewGroup(pathid.Clean("/prod"))
	child.Apps["c"] = &ApplicationSpec{Instances: 1}
	g.Groups["prod"] = child

	if err := g.Validate(); err != nil {
		t.Fatalf("expected a valid tree, got %v", err)
	}
}

func TestGroupAllRunSpecsIsTransitive(t *testing.T) {
	g := NewGroup(pathid.Root)
	g.Apps["web"] = &ApplicationSpec{Instances: 2}
	child := NewGroup(pathid.Clean("/prod"))
	child.Pods["worker"] = &PodSpec{Instances: 1}
	g.Groups["prod"] = child

	specs := g.AllRunSpecs()
	if _, ok := specs[pathid.Clean("/web")]; !ok {
		t.Fatalf("expected /web in AllRunSpecs, got %+v", specs)
	}
	if _, ok := specs[pathid.Clean("/prod/worker")]; !ok {
		t.Fatalf("expected /prod/worker in AllRunSpecs, got %+v", specs)
	}
	if len(specs) != 2 {
		t.Fatalf("expected exactly 2 run-specs, got %d", len(specs))
	}
}

func TestGroupAllGroupsIncludesSelf(t *testing.T) {
	g := NewGroup(pathid.Root)
	child := NewGroup(pathid.Clean("/prod"))
	g.Groups["prod"] = child

	groups := g.AllGroups()
	if _, ok := groups[pathid.Root]; !ok {
		t.Fatalf("expected the root itself in AllGroups")
	}
	if _, ok := groups[pathid.Clean("/prod")]; !ok {
		t.Fatalf("expected /prod in AllGroups")
	}
}
