package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/steward-sh/steward/pkg/controller"
	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/health"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

// defaultShutdownGrace is the bounded grace spec.md section 5 gives a
// controller to react to Shutdown before the executor terminates it
// unconditionally.
const defaultShutdownGrace = 30 * time.Second

// Collaborators bundles everything the Executor wires into each step's
// controllers. Mirrors controller.Collaborators plus the artifact
// destination every ResolveArtifacts action shares.
type Collaborators struct {
	Tracker   *tracker.Tracker
	Queue     *queue.Queue
	Health    *health.Engine
	Kill      external.KillService
	Broker    *events.Broker
	Lookup    controller.RunSpecLookup
	Artifacts *controller.ArtifactResolver
	Grace     time.Duration // 0 means defaultShutdownGrace
}

// Executor drives DeploymentPlans produced by Planner.Plan (spec.md
// section 4.7, "Executor"). Grounded on the teacher's pkg/manager
// sequential apply-then-notify pattern, generalized from one blocking
// call per update into the plan's sequential-steps/concurrent-actions
// model via golang.org/x/sync/errgroup.
type Executor struct {
	c       Collaborators
	planner *Planner
	logger  zerolog.Logger

	mu     sync.Mutex
	byPath map[pathid.Path]*Execution
}

// NewExecutor constructs an Executor against the given collaborators.
func NewExecutor(c Collaborators) *Executor {
	if c.Grace == 0 {
		c.Grace = defaultShutdownGrace
	}
	return &Executor{
		c:       c,
		planner: New(),
		logger:  log.WithComponent("executor"),
		byPath:  make(map[pathid.Path]*Execution),
	}
}

// Execution tracks one in-flight (or completed) plan run.
type Execution struct {
	plan   *types.Plan
	grace  time.Duration
	logger zerolog.Logger

	shutdown chan struct{}
	done     chan error

	cancelOnce sync.Once
	hardCancel context.CancelFunc
}

// Done returns a channel that receives the plan's final error (nil on
// success, an *errs.Error with KindCancellation on cancellation).
func (e *Execution) Done() <-chan error { return e.done }

// Plan returns the execution's underlying plan.
func (e *Execution) Plan() *types.Plan { return e.plan }

// Submit registers plan for execution. If any currently in-flight
// execution affects an overlapping run-spec path, submission fails with a
// conflict error unless force is true, in which case the overlapping
// execution(s) are cancelled (as Cancel(force=true) would) before plan
// starts (spec.md section 4.7: "A concurrent update submission fails
// with a conflict error unless force=true, which cancels the in-flight
// plan as above").
func (ex *Executor) Submit(ctx context.Context, plan *types.Plan, force bool) (*Execution, error) {
	affected := plan.AffectedPaths()

	ex.mu.Lock()
	conflicts := map[*Execution]struct{}{}
	for p := range affected {
		if e, ok := ex.byPath[p]; ok {
			conflicts[e] = struct{}{}
		}
	}
	if len(conflicts) > 0 && !force {
		ex.mu.Unlock()
		return nil, errs.Conflict("submit: plan %s conflicts with an in-flight deployment over overlapping run-specs", plan.ID)
	}
	ex.mu.Unlock()

	for e := range conflicts {
		ex.Cancel(e, true)
		<-e.Done()
	}

	execCtx, cancelFn := context.WithCancel(ctx)
	exec := &Execution{
		plan:       plan,
		grace:      ex.c.Grace,
		logger:     ex.logger.With().Str("plan_id", plan.ID).Logger(),
		shutdown:   make(chan struct{}),
		done:       make(chan error, 1),
		hardCancel: cancelFn,
	}

	ex.mu.Lock()
	for p := range affected {
		ex.byPath[p] = exec
	}
	ex.mu.Unlock()

	go ex.run(execCtx, exec)
	return exec, nil
}

func (ex *Executor) release(exec *Execution) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for p := range exec.plan.AffectedPaths() {
		if ex.byPath[p] == exec {
			delete(ex.byPath, p)
		}
	}
}

func (ex *Executor) run(ctx context.Context, exec *Execution) {
	defer exec.hardCancel()
	defer ex.release(exec)

	ex.c.Broker.Publish(&events.Event{Type: events.TypeDeploymentInfo, Payload: events.DeploymentPayload{PlanID: exec.plan.ID}})

	for i, step := range exec.plan.Steps {
		select {
		case <-exec.shutdown:
			err := errs.Cancellation("plan %s: cancelled before step %d", exec.plan.ID, i)
			ex.failPlan(exec, i, err)
			return
		default:
		}

		if err := ex.runStep(ctx, exec, step); err != nil {
			ex.c.Broker.Publish(&events.Event{
				Type:    events.TypeDeploymentStepFailure,
				Payload: events.DeploymentStepPayload{PlanID: exec.plan.ID, StepIndex: i, Reason: err.Error()},
			})
			ex.failPlan(exec, i, err)
			return
		}
		ex.c.Broker.Publish(&events.Event{
			Type:    events.TypeDeploymentStepSuccess,
			Payload: events.DeploymentStepPayload{PlanID: exec.plan.ID, StepIndex: i},
		})
	}

	ex.c.Broker.Publish(&events.Event{Type: events.TypeDeploymentSuccess, Payload: events.DeploymentPayload{PlanID: exec.plan.ID}})
	exec.done <- nil
}

func (ex *Executor) failPlan(exec *Execution, stepIndex int, err error) {
	ex.c.Broker.Publish(&events.Event{
		Type:    events.TypeDeploymentFailed,
		Payload: events.DeploymentPayload{PlanID: exec.plan.ID, Reason: err.Error()},
	})
	exec.logger.Warn().Err(err).Int("step", stepIndex).Msg("executor: plan failed")
	exec.done <- err
}

func (ex *Executor) runStep(ctx context.Context, exec *Execution, step types.Step) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range step.Actions {
		action := a
		g.Go(func() error {
			return ex.runAction(gctx, action, exec.shutdown)
		})
	}
	return g.Wait()
}

func (ex *Executor) runAction(ctx context.Context, a types.Action, shutdown <-chan struct{}) error {
	collab := controller.Collaborators{
		Tracker: ex.c.Tracker,
		Queue:   ex.c.Queue,
		Health:  ex.c.Health,
		Kill:    ex.c.Kill,
		Broker:  ex.c.Broker,
		Lookup:  ex.c.Lookup,
	}
	switch a.Kind {
	case types.ActionStartApplication:
		return controller.NewStartController(collab).Run(ctx, a.RunSpec, a.ScaleTo, shutdown)
	case types.ActionScaleApplication:
		return controller.NewScaleController(collab).Run(ctx, a.RunSpec, a.ScaleTo, a.ToKill, shutdown)
	case types.ActionRestartApplication:
		return controller.NewRestartController(collab).Run(ctx, a.RunSpec, shutdown)
	case types.ActionStopApplication:
		rs := a.RunSpec
		if rs == nil {
			rs = &types.RunSpec{Path: a.Path, Kind: types.KindApplication, App: &types.ApplicationSpec{}}
		}
		return controller.NewStopController(collab).Run(ctx, rs, shutdown)
	case types.ActionResolveArtifacts:
		arts := make([]controller.Artifact, 0, len(a.Artifacts))
		for url, dest := range a.Artifacts {
			arts = append(arts, controller.Artifact{URL: url, FileName: dest})
		}
		return ex.c.Artifacts.Run(ctx, arts, shutdown)
	default:
		return fmt.Errorf("planner: unknown action kind %q", a.Kind)
	}
}

// Cancel requests that exec stop. force=true stops every live controller
// unconditionally (after exec's bounded grace) and does not roll back;
// force=false stops them the same way and then drives a synthesized plan
// back to the original root (spec.md section 4.7, "On Cancel"). Cancel
// does not block; observe completion via exec.Done() (and, for a
// non-forced cancel, the rollback's own Execution once this method
// returns it via rollbackCh is unnecessary — Cancel submits and discards
// the rollback's handle, relying on the event stream for observability,
// matching how a cancel request has no return value of its own in
// spec.md's Executor contract).
func (ex *Executor) Cancel(exec *Execution, force bool) {
	exec.cancelOnce.Do(func() {
		close(exec.shutdown)
		// The grace timer must not receive from exec.done: that channel
		// carries the plan's single final error for Done() observers.
		// Cancelling after run has already returned is harmless.
		time.AfterFunc(exec.grace, exec.hardCancel)
	})

	if force {
		return
	}

	go func() {
		<-exec.done
		ex.rollback(exec)
	}()
}

func (ex *Executor) rollback(exec *Execution) {
	rollbackID := exec.plan.ID + "-rollback"
	rollbackPlan, err := ex.planner.Plan(rollbackID, time.Now(), exec.plan.TargetRoot, exec.plan.OriginalRoot)
	if err != nil {
		ex.logger.Error().Err(err).Str("plan_id", exec.plan.ID).Msg("executor: could not synthesize rollback plan")
		return
	}
	if _, err := ex.Submit(context.Background(), rollbackPlan, false); err != nil {
		ex.logger.Error().Err(err).Str("plan_id", exec.plan.ID).Msg("executor: could not submit rollback plan")
	}
}
