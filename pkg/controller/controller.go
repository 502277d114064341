// Package controller implements the Deployment Step Controllers of
// spec.md section 4.6: Start, Scale, Rolling-restart and Stop/
// Resolve-artifacts. Each controller is an isolated ordered consumer of
// its own subscription to the event bus (spec.md section 5's
// "single-writer-per-entity" scheduling model applied to a deployment
// step), driving the Launch Queue and the Kill Service collaborator
// toward a target instance-count-and-readiness state and completing its
// Run call once that target is reached or the step is cancelled.
// Grounded on the teacher's pkg/deploy.Deployer.rollingUpdate — a
// batch/parallelism-driven loop toward a target replica count — adapted
// from sleep-driven batch advancement to event-driven advancement, since
// spec.md's controllers react to instance-changed/instance-health-changed
// events rather than polling on a fixed interval.
package controller

import (
	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/health"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

// RunSpecLookup resolves a run-spec's current definition by path.
type RunSpecLookup = health.RunSpecLookup

// Collaborators bundles the dependencies every controller shares, so each
// constructor takes one argument instead of five.
type Collaborators struct {
	Tracker *tracker.Tracker
	Queue   *queue.Queue
	Health  *health.Engine
	Kill    external.KillService
	Broker  *events.Broker
	Lookup  RunSpecLookup
}

func newLogger(name string) zerolog.Logger { return log.WithComponent("controller." + name) }

// activeInstances returns path's currently active (Running, or on the way
// there) instances, the population every controller's target-count
// arithmetic is computed against.
func activeInstances(tr *tracker.Tracker, path pathid.Path) []*types.Instance {
	var out []*types.Instance
	for _, inst := range tr.SpecInstances(path) {
		if inst.IsActive() {
			out = append(out, inst)
		}
	}
	return out
}

// runSpecOf extracts the RunSpec path an instance-changed or
// instance-health-changed event's payload names, for filtering a shared
// subscription down to the controller's own run-spec.
func runSpecOf(evt *events.Event) (pathid.Path, bool) {
	switch p := evt.Payload.(type) {
	case events.InstanceChangedPayload:
		return p.RunSpec, true
	case events.InstanceHealthChangedPayload:
		return p.RunSpec, true
	default:
		return "", false
	}
}

// instanceIDOf extracts the instance id an instance-changed or
// instance-health-changed event's payload names.
func instanceIDOf(evt *events.Event) (string, bool) {
	switch p := evt.Payload.(type) {
	case events.InstanceChangedPayload:
		return p.InstanceID, true
	case events.InstanceHealthChangedPayload:
		return p.InstanceID, true
	default:
		return "", false
	}
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
