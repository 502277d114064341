package controller

import (
	"context"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/health"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

func launchAtVersion(t *testing.T, ctx context.Context, tr *tracker.Tracker, path pathid.Path, taskID string, version time.Time) string {
	t.Helper()
	eff, err := tr.Process(ctx, tracker.LaunchEphemeral{RunSpecPath: path, TaskID: taskID, Version: version.UnixNano()})
	if err != nil || eff.Kind != tracker.EffectUpdate {
		t.Fatalf("LaunchEphemeral: %+v %v", eff, err)
	}
	if _, err := tr.Process(ctx, tracker.MesosUpdate{TaskID: taskID, Reason: types.ReasonTaskRunning, Now: time.Now().UnixNano()}); err != nil {
		t.Fatalf("MesosUpdate running: %v", err)
	}
	return eff.New.ID
}

func TestRestartControllerReplacesOldInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	tr := tracker.New(store.NewMemoryStore(), broker)
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	path := pathid.Clean("/prod/web")
	target := time.Unix(1_700_000_000, 0).UTC()
	oldVersion := time.Unix(1_600_000_000, 0).UTC()
	launchAtVersion(t, ctx, tr, path, "task-old", oldVersion)

	rs := &types.RunSpec{
		Path: path,
		Kind: types.KindApplication,
		App: &types.ApplicationSpec{
			Instances:       2,
			Version:         target,
			UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 0.5, MaximumOverCapacity: 0.5},
		},
	}
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		if p == path {
			return rs, true
		}
		return nil, false
	}

	rm := external.NewFakeResourceManager()
	kill := external.NewKillService(rm, broker)
	q := queue.New()
	h := health.NewEngine(tr, broker, lookup)

	rc := NewRestartController(Collaborators{Tracker: tr, Queue: q, Health: h, Kill: kill, Broker: broker, Lookup: lookup})

	done := make(chan error, 1)
	go func() { done <- rc.Run(ctx, rs, nil) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e, ok := q.Request(path); ok && e.Pending == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if e, ok := q.Request(path); !ok || e.Pending != 2 {
		t.Fatalf("expected launch demand of 2 (leftCapacity bound), got %+v ok=%v", e, ok)
	}

	launchAtVersion(t, ctx, tr, path, "task-new-1", target)
	launchAtVersion(t, ctx, tr, path, "task-new-2", target)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(rm.Killed) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(rm.Killed) != 1 || rm.Killed[0] != "task-old" {
		t.Fatalf("expected the old instance's task to be killed once both replacements are ready, got %v", rm.Killed)
	}

	if _, err := tr.Process(ctx, tracker.MesosUpdate{TaskID: "task-old", Reason: types.ReasonTaskKilled, Now: time.Now().UnixNano()}); err != nil {
		t.Fatalf("MesosUpdate killed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("restart controller did not complete after the old instance's terminal ack")
	}

	remaining := activeInstances(tr, path)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 active instances at completion, got %d", len(remaining))
	}
	for _, inst := range remaining {
		if !inst.RunSpecVersion.Equal(target) {
			t.Fatalf("expected every remaining instance at target version, got %v", inst.RunSpecVersion)
		}
	}
}

func TestRestartControllerCancelsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	tr := tracker.New(store.NewMemoryStore(), broker)
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	path := pathid.Clean("/prod/web")
	target := time.Unix(1_700_000_000, 0).UTC()
	oldVersion := time.Unix(1_600_000_000, 0).UTC()
	launchAtVersion(t, ctx, tr, path, "task-old", oldVersion)

	rs := &types.RunSpec{
		Path: path,
		Kind: types.KindApplication,
		App: &types.ApplicationSpec{
			Instances:       1,
			Version:         target,
			UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 1.0, MaximumOverCapacity: 0},
		},
	}
	lookup := func(p pathid.Path) (*types.RunSpec, bool) {
		if p == path {
			return rs, true
		}
		return nil, false
	}

	rm := external.NewFakeResourceManager()
	kill := external.NewKillService(rm, broker)
	q := queue.New()
	h := health.NewEngine(tr, broker, lookup)

	rc := NewRestartController(Collaborators{Tracker: tr, Queue: q, Health: h, Kill: kill, Broker: broker, Lookup: lookup})

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- rc.Run(ctx, rs, shutdown) }()

	time.Sleep(20 * time.Millisecond)
	close(shutdown)

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected a cancellation error after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatalf("restart controller did not stop after shutdown")
	}

	if len(rm.Killed) != 0 {
		t.Fatalf("shutdown must not kill any ramping instance, got %v", rm.Killed)
	}
}
