package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/types"
)

func newTestTracker(t *testing.T) (*Tracker, context.Context) {
	t.Helper()
	tr := New(store.NewMemoryStore(), events.NewBroker())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(tr.Stop)
	return tr, ctx
}

func TestLaunchEphemeralThenMesosUpdate(t *testing.T) {
	tr, ctx := newTestTracker(t)
	path := pathid.Clean("/prod/web")

	eff, err := tr.Process(ctx, LaunchEphemeral{
		RunSpecPath: path,
		Version:     1,
		Agent:       types.AgentInfo{Host: "agent-1"},
		TaskID:      "task-1",
	})
	if err != nil || eff.Kind != EffectUpdate {
		t.Fatalf("expected Update effect, got %+v err=%v", eff, err)
	}
	instID := eff.New.ID

	eff2, err := tr.Process(ctx, MesosUpdate{TaskID: "task-1", Reason: types.ReasonTaskRunning, Now: time.Now().UnixNano()})
	if err != nil || eff2.Kind != EffectUpdate {
		t.Fatalf("expected Update effect on running transition, got %+v err=%v", eff2, err)
	}
	if eff2.New.State.Condition != types.ConditionRunning {
		t.Fatalf("expected Running condition, got %v", eff2.New.State.Condition)
	}

	if got := tr.Instance(instID); got == nil || got.State.Condition != types.ConditionRunning {
		t.Fatalf("expected tracker to reflect the running instance, got %+v", got)
	}
}

func TestMesosUpdateOnReservedTaskFails(t *testing.T) {
	tr, ctx := newTestTracker(t)
	path := pathid.Clean("/prod/db")

	eff, err := tr.Process(ctx, Reserve{
		RunSpecPath: path,
		Version:     1,
		Agent:       types.AgentInfo{Host: "agent-1"},
		TaskID:      "task-r1",
		Reservation: types.ReservationInfo{Principal: "steward"},
	})
	if err != nil || eff.Kind != EffectUpdate {
		t.Fatalf("expected Update effect for Reserve, got %+v err=%v", eff, err)
	}

	eff2, err := tr.Process(ctx, MesosUpdate{TaskID: "task-r1", Reason: types.ReasonTaskRunning, Now: time.Now().UnixNano()})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if eff2.Kind != EffectFailure {
		t.Fatalf("expected protocol Failure for MesosUpdate against a Reserved task, got %+v", eff2)
	}
}

func TestTerminalStatusExpungesInstance(t *testing.T) {
	tr, ctx := newTestTracker(t)
	path := pathid.Clean("/prod/web")

	eff, _ := tr.Process(ctx, LaunchEphemeral{RunSpecPath: path, Version: 1, Agent: types.AgentInfo{Host: "a"}, TaskID: "task-1"})
	instID := eff.New.ID

	eff2, err := tr.Process(ctx, MesosUpdate{TaskID: "task-1", Reason: types.ReasonTaskFinished, Now: time.Now().UnixNano()})
	if err != nil || eff2.Kind != EffectExpunge {
		t.Fatalf("expected Expunge effect on terminal status, got %+v err=%v", eff2, err)
	}
	if got := tr.Instance(instID); got != nil {
		t.Fatalf("expected instance to be gone after expunge, got %+v", got)
	}
}

func TestForceExpungeUnknownInstanceIsNoop(t *testing.T) {
	tr, ctx := newTestTracker(t)
	eff, err := tr.Process(ctx, ForceExpunge{InstanceID: "does-not-exist"})
	if err != nil || eff.Kind != EffectNoop {
		t.Fatalf("expected Noop for unknown instance, got %+v err=%v", eff, err)
	}
}

func TestSpecInstancesReflectsLaunches(t *testing.T) {
	tr, ctx := newTestTracker(t)
	path := pathid.Clean("/prod/web")

	if _, err := tr.Process(ctx, LaunchEphemeral{RunSpecPath: path, Version: 1, Agent: types.AgentInfo{Host: "a"}, TaskID: "t1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := tr.Process(ctx, LaunchEphemeral{RunSpecPath: path, Version: 1, Agent: types.AgentInfo{Host: "b"}, TaskID: "t2"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	instances := tr.SpecInstances(path)
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances for %s, got %d", path, len(instances))
	}
}
