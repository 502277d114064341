package types

import (
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
)

// ActionKind enumerates the deployment step action variants of spec.md
// section 3.
type ActionKind string

const (
	ActionStartApplication  ActionKind = "StartApplication"
	ActionScaleApplication  ActionKind = "ScaleApplication"
	ActionRestartApplication ActionKind = "RestartApplication"
	ActionStopApplication   ActionKind = "StopApplication"
	ActionResolveArtifacts  ActionKind = "ResolveArtifacts"
)

// Action is one deployment-step action against a single run-spec path.
// Fields not relevant to Kind are left zero.
type Action struct {
	Kind    ActionKind
	Path    pathid.Path
	RunSpec *RunSpec // nil for ActionStopApplication once the spec has been removed from the tree

	ScaleTo int      // StartApplication, ScaleApplication
	ToKill  []string // ScaleApplication: explicit instance ids to kill, if given

	Artifacts map[string]string // ResolveArtifacts: url -> local path
}

// Step is a set of actions safe to execute concurrently (spec.md section
// 3, "deployment plan"). Actions within one step must affect disjoint
// run-spec paths.
type Step struct {
	Actions []Action
}

// Plan is an ordered sequence of steps, honoring dependency edges (spec.md
// section 3 and 4.7).
type Plan struct {
	ID           string
	Version      time.Time
	OriginalRoot *Group
	TargetRoot   *Group
	Steps        []Step
}

// AffectedPaths returns the set of run-spec paths any action in the plan
// touches, used by conflict detection (spec.md invariant ii).
func (p *Plan) AffectedPaths() map[pathid.Path]struct{} {
	out := make(map[pathid.Path]struct{})
	for _, step := range p.Steps {
		for _, a := range step.Actions {
			out[a.Path] = struct{}{}
		}
	}
	return out
}
