// Package tracker implements the Instance Tracker of spec.md section 4.2:
// the authoritative in-memory index of all instances and their tasks,
// serializing every mutation through a single owner goroutine and
// persisting through the repository collaborator before acknowledging.
// Grounded on the teacher's pkg/manager.Manager (single struct owning
// state, every mutation funneled through one apply path) and
// pkg/manager.WarrenFSM's Command{Op,Data}-tagged dispatch, adapted from a
// Raft-replicated FSM to a plain single-goroutine command loop: the
// deployment core has no cluster-consensus requirement of its own (see
// pkg/external for the one place leader election still applies).
package tracker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/types"
)

// UpdateOp is the closed set of mutations the Tracker accepts (spec.md
// section 4.2 "Operations").
type UpdateOp interface {
	isUpdateOp()
}

// LaunchEphemeral records a freshly launched, non-resident task.
type LaunchEphemeral struct {
	RunSpecPath pathid.Path
	Version     int64 // unix-nano version stamp the instance was launched against
	Agent       types.AgentInfo
	TaskID      string
}

// LaunchOnReservation records a task launched against an existing
// reservation (resident workloads).
type LaunchOnReservation struct {
	InstanceID string
	TaskID     string
}

// Reserve records resources held for a resident instance without yet
// running anything.
type Reserve struct {
	RunSpecPath pathid.Path
	Version     int64
	Agent       types.AgentInfo
	TaskID      string
	Reservation types.ReservationInfo
}

// MesosUpdate applies an external status report to a task.
type MesosUpdate struct {
	TaskID    string
	Condition types.Condition
	Reason    types.StatusReason
	Now       int64 // unix-nano
}

// ReservationTimeout expires an instance's reservation with no launch.
type ReservationTimeout struct {
	InstanceID string
}

// ForceExpunge unconditionally removes an instance (used by the Lifecycle
// state machine's expunge policy and by operator-forced removal).
type ForceExpunge struct {
	InstanceID string
	RunSpecPath pathid.Path
}

// MarkUnreachableInactive transitions an Unreachable instance to
// UnreachableInactive once timeUntilInactive has elapsed (spec.md section
// 4.3). Distinct from MesosUpdate since this transition is driven by the
// Lifecycle controller's own clock, not an external status report.
type MarkUnreachableInactive struct {
	InstanceID string
	Now        int64
}

func (LaunchEphemeral) isUpdateOp()     {}
func (LaunchOnReservation) isUpdateOp() {}
func (Reserve) isUpdateOp()             {}
func (MesosUpdate) isUpdateOp()         {}
func (ReservationTimeout) isUpdateOp()  {}
func (ForceExpunge) isUpdateOp()        {}
func (MarkUnreachableInactive) isUpdateOp() {}

// Effect is the closed set of outcomes returned by Process (spec.md section
// 4.2 "Contract").
type Effect struct {
	Kind   EffectKind
	Old    *types.Instance // nil for Update on a brand-new instance
	New    *types.Instance // nil for Expunge
	Events []*events.Event
	Reason string // populated for Failure
}

// EffectKind enumerates Effect.Kind.
type EffectKind string

const (
	EffectUpdate  EffectKind = "update"
	EffectExpunge EffectKind = "expunge"
	EffectNoop    EffectKind = "noop"
	EffectFailure EffectKind = "failure"
)

// command bundles a caller's UpdateOp with a reply channel, letting Process
// block the caller while staying single-threaded internally.
type command struct {
	op    UpdateOp
	reply chan Effect
}

// Tracker is the single-owner actor over the in-memory instance index.
type Tracker struct {
	repo   store.Repository
	broker *events.Broker
	logger zerolog.Logger

	// byTask indexes instance id by task id for O(1) MesosUpdate dispatch.
	byTask map[string]string
	// bySpec indexes instance ids by owning run-spec path.
	bySpec map[pathid.Path]map[string]bool
	// instances is the authoritative in-memory map, keyed by instance id.
	instances map[string]*types.Instance

	cmdCh   chan command
	queryCh chan query
	done    chan struct{}
}

// New constructs a Tracker. Start must be called before Process is used.
func New(repo store.Repository, broker *events.Broker) *Tracker {
	return &Tracker{
		repo:      repo,
		broker:    broker,
		logger:    log.WithComponent("tracker"),
		byTask:    make(map[string]string),
		bySpec:    make(map[pathid.Path]map[string]bool),
		instances: make(map[string]*types.Instance),
		cmdCh:     make(chan command),
		queryCh:   make(chan query),
		done:      make(chan struct{}),
	}
}

// Start launches the Tracker's single command-processing goroutine, first
// warming the in-memory index from the repository (spec.md section 4.2:
// "a mutation is only visible to readers after the repository write
// commits" implies a cold boot must reload everything committed so far).
func (t *Tracker) Start(ctx context.Context) error {
	all, err := t.repo.ListAllInstances()
	if err != nil {
		return errs.Repository(err, "tracker: initial instance load")
	}
	for _, inst := range all {
		t.index(inst)
	}
	go t.run(ctx)
	return nil
}

// Stop terminates the command loop. Safe to call once.
func (t *Tracker) Stop() {
	close(t.done)
}

func (t *Tracker) run(ctx context.Context) {
	for {
		select {
		case cmd := <-t.cmdCh:
			eff := t.apply(cmd.op)
			if eff.Kind == EffectFailure {
				t.logger.Warn().Str("reason", eff.Reason).Msg("tracker: update rejected")
			}
			for _, evt := range eff.Events {
				t.broker.Publish(evt)
			}
			cmd.reply <- eff
		case q := <-t.queryCh:
			q.reply <- q.fn()
		case <-ctx.Done():
			return
		case <-t.done:
			return
		}
	}
}

// Process submits op to the Tracker's command loop and blocks for the
// resulting Effect (spec.md section 4.2 "process(update-op)").
func (t *Tracker) Process(ctx context.Context, op UpdateOp) (Effect, error) {
	reply := make(chan Effect, 1)
	select {
	case t.cmdCh <- command{op: op, reply: reply}:
	case <-ctx.Done():
		return Effect{}, ctx.Err()
	case <-t.done:
		return Effect{}, errs.Cancellation("tracker stopped")
	}
	select {
	case eff := <-reply:
		return eff, nil
	case <-ctx.Done():
		return Effect{}, ctx.Err()
	case <-t.done:
		return Effect{}, errs.Cancellation("tracker stopped")
	}
}

func (t *Tracker) index(inst *types.Instance) {
	t.instances[inst.ID] = inst
	if t.bySpec[inst.RunSpecPath] == nil {
		t.bySpec[inst.RunSpecPath] = make(map[string]bool)
	}
	t.bySpec[inst.RunSpecPath][inst.ID] = true
	for taskID := range inst.Tasks {
		t.byTask[taskID] = inst.ID
	}
}

func (t *Tracker) unindex(inst *types.Instance) {
	delete(t.instances, inst.ID)
	delete(t.bySpec[inst.RunSpecPath], inst.ID)
	if len(t.bySpec[inst.RunSpecPath]) == 0 {
		delete(t.bySpec, inst.RunSpecPath)
	}
	for taskID := range inst.Tasks {
		delete(t.byTask, taskID)
	}
}

// apply executes one UpdateOp under the Tracker's single-goroutine
// invariant. This is the only place the in-memory index is mutated.
func (t *Tracker) apply(op UpdateOp) Effect {
	switch o := op.(type) {
	case LaunchEphemeral:
		return t.applyLaunchEphemeral(o)
	case LaunchOnReservation:
		return t.applyLaunchOnReservation(o)
	case Reserve:
		return t.applyReserve(o)
	case MesosUpdate:
		return t.applyMesosUpdate(o)
	case ReservationTimeout:
		return t.applyReservationTimeout(o)
	case ForceExpunge:
		return t.applyForceExpunge(o)
	case MarkUnreachableInactive:
		return t.applyMarkUnreachableInactive(o)
	default:
		return Effect{Kind: EffectFailure, Reason: fmt.Sprintf("unknown update op %T", op)}
	}
}

func (t *Tracker) persist(inst *types.Instance) error {
	if err := t.repo.PutInstance(string(inst.RunSpecPath), inst); err != nil {
		return errs.Repository(err, "tracker: persist instance %s", inst.ID)
	}
	return nil
}
