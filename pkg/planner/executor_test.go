package planner

import (
	"context"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/health"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

func newTestExecutor(t *testing.T, lookup health.RunSpecLookup) (*Executor, *tracker.Tracker, *events.Broker, *external.FakeResourceManager) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	tr := tracker.New(store.NewMemoryStore(), broker)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(tr.Stop)

	rm := external.NewFakeResourceManager()
	kill := external.NewKillService(rm, broker)
	q := queue.New()
	h := health.NewEngine(tr, broker, lookup)

	ex := NewExecutor(Collaborators{
		Tracker: tr,
		Queue:   q,
		Health:  h,
		Kill:    kill,
		Broker:  broker,
		Lookup:  lookup,
		Grace:   50 * time.Millisecond,
	})
	return ex, tr, broker, rm
}

func TestExecutorRunsStepsSequentiallyAndPublishesSuccess(t *testing.T) {
	pathA := pathid.Clean("/a")
	pathB := pathid.Clean("/b")
	rsA := &types.RunSpec{Path: pathA, Kind: types.KindApplication, App: &types.ApplicationSpec{Instances: 1}}
	rsB := &types.RunSpec{Path: pathB, Kind: types.KindApplication, App: &types.ApplicationSpec{Instances: 1}}
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		switch p {
		case pathA:
			return rsA, true
		case pathB:
			return rsB, true
		}
		return nil, false
	}

	ex, tr, broker, _ := newTestExecutor(t, lookup)

	plan := &types.Plan{
		ID: "p1",
		Steps: []types.Step{
			{Actions: []types.Action{{Kind: types.ActionStartApplication, Path: pathA, RunSpec: rsA, ScaleTo: 1}}},
			{Actions: []types.Action{{Kind: types.ActionStartApplication, Path: pathB, RunSpec: rsB, ScaleTo: 1}}},
		},
		OriginalRoot: types.NewGroup(pathid.Root),
		TargetRoot:   types.NewGroup(pathid.Root),
	}

	sub := broker.SubscribeTo(events.TypeDeploymentStepSuccess, events.TypeDeploymentSuccess)
	defer broker.Unsubscribe(sub)

	exec, err := ex.Submit(context.Background(), plan, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	time.Sleep(20 * time.Millisecond) // let the Start controller subscribe before any event fires
	eff, err := tr.Process(context.Background(), tracker.LaunchEphemeral{RunSpecPath: pathA, TaskID: "task-a"})
	if err != nil || eff.Kind != tracker.EffectUpdate {
		t.Fatalf("LaunchEphemeral a: %+v %v", eff, err)
	}
	if _, err := tr.Process(context.Background(), tracker.MesosUpdate{TaskID: "task-a", Reason: types.ReasonTaskRunning, Now: time.Now().UnixNano()}); err != nil {
		t.Fatalf("MesosUpdate a: %v", err)
	}

	var stepSuccesses int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && stepSuccesses < 1 {
		select {
		case evt := <-sub:
			if evt.Type == events.TypeDeploymentStepSuccess {
				stepSuccesses++
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	if stepSuccesses < 1 {
		t.Fatalf("expected the first step to succeed before the second starts")
	}

	effB, err := tr.Process(context.Background(), tracker.LaunchEphemeral{RunSpecPath: pathB, TaskID: "task-b"})
	if err != nil || effB.Kind != tracker.EffectUpdate {
		t.Fatalf("LaunchEphemeral b: %+v %v", effB, err)
	}
	if _, err := tr.Process(context.Background(), tracker.MesosUpdate{TaskID: "task-b", Reason: types.ReasonTaskRunning, Now: time.Now().UnixNano()}); err != nil {
		t.Fatalf("MesosUpdate b: %v", err)
	}

	select {
	case err := <-exec.Done():
		if err != nil {
			t.Fatalf("expected plan success, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("executor did not complete the plan")
	}
}

func TestExecutorConflictingSubmitWithoutForceFails(t *testing.T) {
	path := pathid.Clean("/shared")
	rs := &types.RunSpec{Path: path, Kind: types.KindApplication, App: &types.ApplicationSpec{Instances: 2}}
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		if p == path {
			return rs, true
		}
		return nil, false
	}
	ex, _, _, _ := newTestExecutor(t, lookup)

	plan := &types.Plan{
		ID:           "p2",
		Steps:        []types.Step{{Actions: []types.Action{{Kind: types.ActionStartApplication, Path: path, RunSpec: rs, ScaleTo: 2}}}},
		OriginalRoot: types.NewGroup(pathid.Root),
		TargetRoot:   types.NewGroup(pathid.Root),
	}

	if _, err := ex.Submit(context.Background(), plan, false); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	_, err := ex.Submit(context.Background(), plan, false)
	if !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected a conflict error for the overlapping in-flight plan, got %v", err)
	}
}

func TestExecutorForceCancelStopsWithoutRollback(t *testing.T) {
	path := pathid.Clean("/slow")
	rs := &types.RunSpec{Path: path, Kind: types.KindApplication, App: &types.ApplicationSpec{Instances: 3}}
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		if p == path {
			return rs, true
		}
		return nil, false
	}
	ex, _, _, _ := newTestExecutor(t, lookup)

	plan := &types.Plan{
		ID:           "p3",
		Steps:        []types.Step{{Actions: []types.Action{{Kind: types.ActionStartApplication, Path: path, RunSpec: rs, ScaleTo: 3}}}},
		OriginalRoot: types.NewGroup(pathid.Root),
		TargetRoot:   types.NewGroup(pathid.Root),
	}

	exec, err := ex.Submit(context.Background(), plan, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ex.Cancel(exec, true)

	select {
	case err := <-exec.Done():
		if !errs.Is(err, errs.KindCancellation) {
			t.Fatalf("expected a cancellation error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("executor did not stop after a forced cancel")
	}

	ex.mu.Lock()
	remaining := len(ex.byPath)
	ex.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected the executor to release the cancelled plan's paths, got %d still held", remaining)
	}
}
