// Package registry holds the orchestrator's current group tree in memory
// and drives deployments against it through the Planner/Executor. Grounded
// on the teacher's pkg/manager.Manager: the single component that owns
// authoritative application state and exposes an apply-then-notify entry
// point (UpdateService), generalized here from one service at a time to a
// whole group tree, and from Raft-FSM-backed storage to a plain in-memory
// tree guarded by a mutex, since this core's Raft use is leadership-only
// (see pkg/external.RaftElector's package doc).
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/planner"
	"github.com/steward-sh/steward/pkg/types"
)

// Registry owns the current target group tree and is the Lookup source
// every actor (launcher, health engine, controllers) resolves run-specs
// against.
type Registry struct {
	executor *planner.Executor
	planner  *planner.Planner
	logger   zerolog.Logger

	mu      sync.RWMutex
	current *types.Group
}

// New returns a Registry seeded with an empty root group, driving
// deployments through executor.
func New(executor *planner.Executor) *Registry {
	return &Registry{
		executor: executor,
		planner:  planner.New(),
		logger:   log.WithComponent("registry"),
		current:  types.NewGroup(pathid.Root),
	}
}

// Lookup resolves path against the current tree; it satisfies
// controller.RunSpecLookup/health.RunSpecLookup/launcher.RunSpecLookup's
// shared shape.
func (r *Registry) Lookup(path pathid.Path) (*types.RunSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.current.AllRunSpecs()[path]
	return rs, ok
}

// Current returns the tree currently believed live. Callers must not
// mutate the returned tree.
func (r *Registry) Current() *types.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Deploy diffs target against the currently live tree, submits the
// resulting plan to the Executor, and — once the plan completes
// successfully — swaps target in as current. id identifies the resulting
// plan for observability; force is passed through to Executor.Submit.
func (r *Registry) Deploy(ctx context.Context, id string, target *types.Group, force bool) (*planner.Execution, error) {
	r.mu.Lock()
	original := r.current
	r.mu.Unlock()

	plan, err := r.planner.Plan(id, time.Now(), original, target)
	if err != nil {
		return nil, err
	}

	exec, err := r.executor.Submit(ctx, plan, force)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := <-exec.Done(); err != nil {
			r.logger.Warn().Err(err).Str("plan_id", id).Msg("registry: deployment failed, leaving tree unswapped")
			return
		}
		r.mu.Lock()
		r.current = target
		r.mu.Unlock()
	}()

	return exec, nil
}
