package controller

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/types"
)

// ScaleController implements spec.md section 4.6.2: compute the delta
// between current active instances and scaleTo, killing victims for a
// negative delta and requesting launches for a positive one.
type ScaleController struct {
	c      Collaborators
	logger zerolog.Logger
}

// NewScaleController constructs a ScaleController over c.
func NewScaleController(c Collaborators) *ScaleController {
	return &ScaleController{c: c, logger: newLogger("scale")}
}

// Run drives rs toward scaleTo active instances. toKill, if non-empty,
// names the instance ids to prefer killing on a scale-down; any remaining
// victims are picked per rs's KillSelection.
func (sc *ScaleController) Run(ctx context.Context, rs *types.RunSpec, scaleTo int, toKill []string, shutdown <-chan struct{}) error {
	path := rs.Path
	active := activeInstances(sc.c.Tracker, path)
	delta := scaleTo - len(active)
	if delta == 0 {
		return nil
	}

	if delta < 0 {
		// Placement constraints (UNIQUE/MAX_PER) only bound how many
		// instances may occupy a given agent/attribute value; removing
		// instances can never push a satisfied fleet out of bounds, so
		// victim selection needs no constraint re-check here.
		victims := selectVictims(active, -delta, toKill, rs.KillSelectionOf())
		return sc.c.Kill.KillInstances(ctx, victims, "ScaleApplication")
	}

	sc.c.Queue.Add(path, delta, rs.VersionInfoOf(), rs.BackoffOf())

	sub := sc.c.Broker.SubscribeTo(events.TypeInstanceChanged)
	defer sc.c.Broker.Unsubscribe(sub)

	if len(activeInstances(sc.c.Tracker, path)) >= scaleTo {
		return nil
	}
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return errs.Cancellation("scale controller: event bus closed for %s", path)
			}
			if p, ok := runSpecOf(evt); !ok || p != path {
				continue
			}
			if len(activeInstances(sc.c.Tracker, path)) >= scaleTo {
				return nil
			}
		case <-shutdown:
			return errs.Cancellation("scale controller: shutdown for %s", path)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// selectVictims picks n instances to kill out of active: toKill names are
// honored first (in the order given), then the remainder is filled per
// selection's youngest/oldest-first ordering over inst.State.Since.
func selectVictims(active []*types.Instance, n int, toKill []string, selection types.KillSelection) []*types.Instance {
	if n <= 0 {
		return nil
	}
	byID := make(map[string]*types.Instance, len(active))
	for _, inst := range active {
		byID[inst.ID] = inst
	}

	chosen := make(map[string]bool, n)
	victims := make([]*types.Instance, 0, n)
	for _, id := range toKill {
		if len(victims) >= n {
			break
		}
		if inst, ok := byID[id]; ok && !chosen[id] {
			victims = append(victims, inst)
			chosen[id] = true
		}
	}
	if len(victims) >= n {
		return victims[:n]
	}

	remaining := make([]*types.Instance, 0, len(active)-len(victims))
	for _, inst := range active {
		if !chosen[inst.ID] {
			remaining = append(remaining, inst)
		}
	}
	sortBySelection(remaining, selection)

	need := n - len(victims)
	if need > len(remaining) {
		need = len(remaining)
	}
	return append(victims, remaining[:need]...)
}

// sortBySelection orders insts in-place per selection: KillOldestFirst
// sorts ascending by State.Since (oldest at index 0), the
// YoungestFirst default sorts descending (youngest at index 0).
func sortBySelection(insts []*types.Instance, selection types.KillSelection) {
	sort.Slice(insts, func(i, j int) bool {
		if selection == types.KillOldestFirst {
			return insts[i].State.Since.Before(insts[j].State.Since)
		}
		return insts[i].State.Since.After(insts[j].State.Since)
	})
}
