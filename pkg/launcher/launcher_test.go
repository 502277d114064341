package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/matcher"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

func TestLauncherLaunchesAgainstMatchingOffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := tracker.New(store.NewMemoryStore(), events.NewBroker())
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	q := queue.New()
	path := pathid.Clean("/prod/web")
	q.Add(path, 1, types.VersionInfo{}, types.DefaultBackoffStrategy())

	rs := &types.RunSpec{Path: path, Kind: types.KindApplication, App: &types.ApplicationSpec{Instances: 1}}
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		if p == path {
			return rs, true
		}
		return nil, false
	}

	rm := external.NewFakeResourceManager()
	m := matcher.New("STEWARD_")
	l := New(tr, q, rm, m, lookup, nil)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	rm.PushOffer(matcher.Offer{ID: "offer-1", AgentID: "agent-1", Host: "10.0.0.1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rm.Launched) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(rm.Launched) != 1 {
		t.Fatalf("expected one launch, got %d", len(rm.Launched))
	}

	insts := tr.SpecInstances(path)
	if len(insts) != 1 {
		t.Fatalf("expected one tracked instance, got %d", len(insts))
	}
	if e, _ := q.Request(path); e.Pending != 0 {
		t.Fatalf("expected queue pending decremented to 0, got %d", e.Pending)
	}
}

func TestLauncherAppliesPushedStatusUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := tracker.New(store.NewMemoryStore(), events.NewBroker())
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	path := pathid.Clean("/prod/web")
	eff, err := tr.Process(ctx, tracker.LaunchEphemeral{RunSpecPath: path, TaskID: "task-1"})
	if err != nil || eff.Kind != tracker.EffectUpdate {
		t.Fatalf("LaunchEphemeral: %+v %v", eff, err)
	}
	instID := eff.New.ID

	q := queue.New()
	rm := external.NewFakeResourceManager()
	l := New(tr, q, rm, matcher.New(""), func(pathid.Path) (*types.RunSpec, bool) { return nil, false }, nil)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	rm.PushStatusUpdate(external.StatusUpdate{TaskID: "task-1", Reason: types.ReasonTaskRunning})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		inst := tr.Instance(instID)
		if inst != nil && inst.State.Condition == types.ConditionRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	inst := tr.Instance(instID)
	if inst == nil || inst.State.Condition != types.ConditionRunning {
		t.Fatalf("expected instance Running after pushed status update, got %+v", inst)
	}
	if len(rm.Acknowledged) != 1 {
		t.Fatalf("expected one Acknowledge call, got %d", len(rm.Acknowledged))
	}
}
