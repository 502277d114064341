package controller

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/types"
)

// StartController implements spec.md section 4.6.1: request scaleTo
// launches from the Launch Queue and complete once that many instances
// satisfy the ready decision rule, re-driving queue demand whenever an
// instance is lost during the step.
type StartController struct {
	c      Collaborators
	logger zerolog.Logger
}

// NewStartController constructs a StartController over c.
func NewStartController(c Collaborators) *StartController {
	return &StartController{c: c, logger: newLogger("start")}
}

// Run drives rs toward scaleTo ready instances. shutdown, if it fires
// before completion, ends the step with a cancellation error without
// killing anything already launched.
func (sc *StartController) Run(ctx context.Context, rs *types.RunSpec, scaleTo int, shutdown <-chan struct{}) error {
	path := rs.Path
	backoff := rs.BackoffOf()
	versionInfo := rs.VersionInfoOf()

	sub := sc.c.Broker.SubscribeTo(events.TypeInstanceChanged, events.TypeInstanceHealthChanged)
	defer sc.c.Broker.Unsubscribe(sub)

	rb := newReadinessBehavior(sc.c.Health)

	recompute := func() []string {
		active := activeInstances(sc.c.Tracker, path)
		ids := make([]string, 0, len(active))
		for _, inst := range active {
			ids = append(ids, inst.ID)
		}
		deficit := scaleTo - len(active)
		if deficit < 0 {
			deficit = 0
		}
		sc.c.Queue.Add(path, deficit, versionInfo, backoff)
		return ids
	}

	if rb.readyCount(recompute()) >= scaleTo {
		return nil
	}

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return errs.Cancellation("start controller: event bus closed for %s", path)
			}
			if p, ok := runSpecOf(evt); !ok || p != path {
				continue
			}
			if rb.readyCount(recompute()) >= scaleTo {
				return nil
			}
		case <-shutdown:
			return errs.Cancellation("start controller: shutdown for %s", path)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
