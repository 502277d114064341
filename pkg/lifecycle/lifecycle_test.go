package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

func TestEvaluateMarksInactiveAfterTimeUntilInactive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := tracker.New(store.NewMemoryStore(), events.NewBroker())
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	eff, err := tr.Process(ctx, tracker.LaunchEphemeral{
		RunSpecPath: pathid.Clean("/prod/web"),
		Version:     1,
		Agent:       types.AgentInfo{Host: "agent-1"},
		TaskID:      "task-1",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	instID := eff.New.ID

	strategy := types.UnreachableStrategy{TimeUntilInactive: 10 * time.Second, TimeUntilExpunge: time.Hour}
	eff2, err := tr.Process(ctx, tracker.MesosUpdate{TaskID: "task-1", Reason: types.ReasonTaskLost, Now: time.Now().UnixNano()})
	if err != nil || eff2.Kind != tracker.EffectUpdate {
		t.Fatalf("expected Update to Unreachable, got %+v err=%v", eff2, err)
	}
	if eff2.New.State.Condition != types.ConditionUnreachable {
		t.Fatalf("expected Unreachable condition, got %v", eff2.New.State.Condition)
	}

	c := NewController(DefaultConfig(), tr)

	inst := tr.Instance(instID)
	inst.UnreachableStrategy = strategy
	// Simulate time having passed since the instance went unreachable.
	inst.State.Since = time.Now().Add(-20 * time.Second)

	c.evaluate(ctx, inst, time.Now())

	got := tr.Instance(instID)
	if got.State.Condition != types.ConditionUnreachableInactive {
		t.Fatalf("expected UnreachableInactive after sweep, got %v", got.State.Condition)
	}
}

func TestEvaluateExpungesAfterTimeUntilExpunge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := tracker.New(store.NewMemoryStore(), events.NewBroker())
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	eff, err := tr.Process(ctx, tracker.LaunchEphemeral{
		RunSpecPath: pathid.Clean("/prod/web"),
		Version:     1,
		Agent:       types.AgentInfo{Host: "agent-1"},
		TaskID:      "task-1",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	instID := eff.New.ID

	if _, err := tr.Process(ctx, tracker.MesosUpdate{TaskID: "task-1", Reason: types.ReasonTaskLost, Now: time.Now().UnixNano()}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := tr.Process(ctx, tracker.MarkUnreachableInactive{InstanceID: instID, Now: time.Now().UnixNano()}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	c := NewController(DefaultConfig(), tr)

	inst := tr.Instance(instID)
	inst.State.Since = time.Now().Add(-time.Hour)

	c.evaluate(ctx, inst, time.Now())

	if got := tr.Instance(instID); got != nil {
		t.Fatalf("expected instance to be expunged, got %+v", got)
	}
}
