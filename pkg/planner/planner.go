// Package planner implements the Deployment Planner of spec.md section
// 4.7: diffing an original group tree against a target group tree into an
// ordered DeploymentPlan honoring dependency edges. Grounded on the
// teacher's pkg/deploy.Deployer (the single "compute what changed, then
// produce an ordered sequence of work" entrypoint shape), generalized from
// a one-service rolling-update loop into a whole-tree diff with a real DAG.
package planner

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

// Planner computes a DeploymentPlan from a pair of group trees. It holds
// no mutable state; every call is independent.
type Planner struct {
	logger zerolog.Logger
}

// New returns a Planner.
func New() *Planner {
	return &Planner{logger: log.WithComponent("planner")}
}

// Plan diffs original against target and returns an ordered plan (spec.md
// section 4.7). id/version identify the resulting plan and are used to
// stamp VersionInfo on actions that carry a spec change.
func (p *Planner) Plan(id string, version time.Time, original, target *types.Group) (*types.Plan, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	oldSpecs := original.AllRunSpecs()
	newSpecs := target.AllRunSpecs()

	type classified struct {
		path pathid.Path
		kind types.ActionKind
		rs   *types.RunSpec
		art  map[string]string
	}
	var items []classified

	for path, newRS := range newSpecs {
		oldRS, existed := oldSpecs[path]
		if !existed {
			rs := withVersionInfo(newRS, types.VersionInfo{LastConfigChangeAt: version})
			items = append(items, classified{
				path: path, kind: types.ActionStartApplication, rs: rs,
				art: artifactFor(rs, ""),
			})
			continue
		}
		if configChanged(oldRS, newRS) {
			lastScalingAt := oldRS.VersionInfoOf().LastScalingAt
			if newRS.Instances() != oldRS.Instances() {
				lastScalingAt = version
			}
			rs := withVersionInfo(newRS, types.VersionInfo{
				LastConfigChangeAt: version,
				LastScalingAt:      lastScalingAt,
			})
			items = append(items, classified{
				path: path, kind: types.ActionRestartApplication, rs: rs,
				art: artifactFor(rs, imageOf(oldRS)),
			})
			continue
		}
		if newRS.Instances() != oldRS.Instances() {
			rs := withVersionInfo(newRS, types.VersionInfo{
				LastConfigChangeAt: oldRS.VersionInfoOf().LastConfigChangeAt,
				LastScalingAt:      version,
			})
			items = append(items, classified{path: path, kind: types.ActionScaleApplication, rs: rs})
		}
	}
	for path := range oldSpecs {
		if _, stillPresent := newSpecs[path]; !stillPresent {
			items = append(items, classified{path: path, kind: types.ActionStopApplication})
		}
	}

	actionPaths := make(map[pathid.Path]struct{}, len(items))
	for _, it := range items {
		actionPaths[it.path] = struct{}{}
	}

	// Rule 1: ResolveArtifacts step precedes everything else.
	var steps []types.Step
	var resolveActions []types.Action
	for _, it := range items {
		if it.art != nil {
			resolveActions = append(resolveActions, types.Action{
				Kind: types.ActionResolveArtifacts, Path: it.path, RunSpec: it.rs, Artifacts: it.art,
			})
		}
	}
	if len(resolveActions) > 0 {
		steps = append(steps, types.Step{Actions: resolveActions})
	}

	// Rule 2: topological layering over dependency edges, using the
	// target tree (what the eventual fleet depends on); reject cycles.
	lg := buildLayerGraph(target, actionPaths)
	layers, err := lg.layers()
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	byPath := make(map[pathid.Path]classified, len(items))
	for _, it := range items {
		byPath[it.path] = it
	}

	// Rule 3: within each layer, Start/ScaleUp precede ScaleDown+Stop,
	// which precede Restart.
	for _, layer := range layers {
		var starts, scaleUps, scaleDownsAndStops, restarts []types.Action
		for _, path := range layer {
			it, ok := byPath[path]
			if !ok {
				continue
			}
			switch it.kind {
			case types.ActionStartApplication:
				starts = append(starts, types.Action{Kind: it.kind, Path: it.path, RunSpec: it.rs, ScaleTo: it.rs.Instances()})
			case types.ActionScaleApplication:
				oldRS := oldSpecs[it.path]
				if it.rs.Instances() >= oldRS.Instances() {
					scaleUps = append(scaleUps, types.Action{Kind: it.kind, Path: it.path, RunSpec: it.rs, ScaleTo: it.rs.Instances()})
				} else {
					scaleDownsAndStops = append(scaleDownsAndStops, types.Action{Kind: it.kind, Path: it.path, RunSpec: it.rs, ScaleTo: it.rs.Instances()})
				}
			case types.ActionStopApplication:
				scaleDownsAndStops = append(scaleDownsAndStops, types.Action{Kind: it.kind, Path: it.path})
			case types.ActionRestartApplication:
				restarts = append(restarts, types.Action{Kind: it.kind, Path: it.path, RunSpec: it.rs})
			}
		}
		for _, group := range [][]types.Action{starts, scaleUps, scaleDownsAndStops, restarts} {
			if len(group) > 0 {
				steps = append(steps, types.Step{Actions: group})
			}
		}
	}

	return &types.Plan{
		ID:           id,
		Version:      version,
		OriginalRoot: original,
		TargetRoot:   target,
		Steps:        steps,
	}, nil
}
