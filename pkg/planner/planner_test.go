package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

func rootWithApps(apps map[string]*types.ApplicationSpec) *types.Group {
	g := types.NewGroup(pathid.Root)
	for id, app := range apps {
		g.Apps[id] = app
	}
	return g
}

func TestPlanAddsStartForNewSpec(t *testing.T) {
	original := rootWithApps(nil)
	target := rootWithApps(map[string]*types.ApplicationSpec{
		"web": {Instances: 3},
	})

	p := New()
	plan, err := p.Plan("d1", time.Now(), original, target)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var found *types.Action
	for _, step := range plan.Steps {
		for _, a := range step.Actions {
			if a.Kind == types.ActionStartApplication {
				found = &a
			}
		}
	}
	if found == nil {
		t.Fatalf("expected a StartApplication action, got steps %+v", plan.Steps)
	}
	if found.ScaleTo != 3 {
		t.Fatalf("expected ScaleTo 3, got %d", found.ScaleTo)
	}
}

func TestPlanOrdersDependenciesAcrossLayers(t *testing.T) {
	original := rootWithApps(nil)
	target := types.NewGroup(pathid.Root)
	target.Apps["a"] = &types.ApplicationSpec{Instances: 1}
	target.Apps["b"] = &types.ApplicationSpec{
		Instances:    1,
		Dependencies: map[pathid.Path]struct{}{pathid.Clean("/a"): {}},
	}

	p := New()
	plan, err := p.Plan("d2", time.Now(), original, target)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	stepOf := func(path pathid.Path) int {
		for i, step := range plan.Steps {
			for _, a := range step.Actions {
				if a.Path == path {
					return i
				}
			}
		}
		return -1
	}
	aStep, bStep := stepOf(pathid.Clean("/a")), stepOf(pathid.Clean("/b"))
	if aStep < 0 || bStep < 0 {
		t.Fatalf("expected both /a and /b scheduled, got steps %+v", plan.Steps)
	}
	if !(aStep < bStep) {
		t.Fatalf("expected /a's step (%d) to precede /b's step (%d)", aStep, bStep)
	}
}

func TestPlanRejectsCyclicDependencies(t *testing.T) {
	target := types.NewGroup(pathid.Root)
	target.Apps["a"] = &types.ApplicationSpec{
		Instances:    1,
		Dependencies: map[pathid.Path]struct{}{pathid.Clean("/b"): {}},
	}
	target.Apps["b"] = &types.ApplicationSpec{
		Instances:    1,
		Dependencies: map[pathid.Path]struct{}{pathid.Clean("/a"): {}},
	}

	p := New()
	_, err := p.Plan("d3", time.Now(), rootWithApps(nil), target)
	if err == nil || !strings.Contains(err.Error(), "cyclic dependencies") {
		t.Fatalf("expected a cyclic dependencies error, got %v", err)
	}
}

func TestPlanScaleOnlyDoesNotRestart(t *testing.T) {
	original := rootWithApps(map[string]*types.ApplicationSpec{
		"web": {Instances: 2, Image: "app:v1"},
	})
	target := rootWithApps(map[string]*types.ApplicationSpec{
		"web": {Instances: 4, Image: "app:v1"},
	})

	p := New()
	plan, err := p.Plan("d4", time.Now(), original, target)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var sawScale, sawRestart bool
	for _, step := range plan.Steps {
		for _, a := range step.Actions {
			switch a.Kind {
			case types.ActionScaleApplication:
				sawScale = true
				if a.ScaleTo != 4 {
					t.Fatalf("expected ScaleTo 4, got %d", a.ScaleTo)
				}
			case types.ActionRestartApplication:
				sawRestart = true
			}
		}
	}
	if !sawScale {
		t.Fatalf("expected a ScaleApplication action, got steps %+v", plan.Steps)
	}
	if sawRestart {
		t.Fatalf("a pure scale change must never produce a RestartApplication")
	}
}

func TestPlanConfigChangeProducesRestartAndResolvesArtifacts(t *testing.T) {
	original := rootWithApps(map[string]*types.ApplicationSpec{
		"web": {Instances: 2, Image: "app:v1"},
	})
	target := rootWithApps(map[string]*types.ApplicationSpec{
		"web": {Instances: 2, Image: "app:v2"},
	})

	p := New()
	plan, err := p.Plan("d5", time.Now(), original, target)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(plan.Steps) == 0 || plan.Steps[0].Actions[0].Kind != types.ActionResolveArtifacts {
		t.Fatalf("expected the first step to resolve artifacts, got %+v", plan.Steps)
	}

	var sawRestart bool
	for _, step := range plan.Steps {
		for _, a := range step.Actions {
			if a.Kind == types.ActionRestartApplication {
				sawRestart = true
				if a.RunSpec.VersionInfoOf().LastConfigChangeAt.IsZero() {
					t.Fatalf("expected LastConfigChangeAt to be stamped on the restart action's run-spec")
				}
			}
		}
	}
	if !sawRestart {
		t.Fatalf("expected a RestartApplication action for the image change, got steps %+v", plan.Steps)
	}
}

func TestPlanStopsRemovedSpecs(t *testing.T) {
	original := rootWithApps(map[string]*types.ApplicationSpec{
		"web": {Instances: 1},
	})
	target := rootWithApps(nil)

	p := New()
	plan, err := p.Plan("d6", time.Now(), original, target)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var sawStop bool
	for _, step := range plan.Steps {
		for _, a := range step.Actions {
			if a.Kind == types.ActionStopApplication && a.Path == pathid.Clean("/web") {
				sawStop = true
			}
		}
	}
	if !sawStop {
		t.Fatalf("expected a StopApplication action for the removed spec, got steps %+v", plan.Steps)
	}
}
