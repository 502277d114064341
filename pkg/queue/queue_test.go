package queue

import (
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

func TestAddWithoutConfigChangePreservesDelay(t *testing.T) {
	q := New()
	path := pathid.Clean("/prod/web")
	backoff := types.DefaultBackoffStrategy()
	stamp := time.Unix(1000, 0)

	q.Add(path, 3, types.VersionInfo{LastConfigChangeAt: stamp}, backoff)
	q.RecordLaunchFailure(path, backoff, false, time.Unix(2000, 0))
	afterFailure, _ := q.Request(path)

	q.Add(path, 5, types.VersionInfo{LastConfigChangeAt: stamp}, backoff)
	afterScale, _ := q.Request(path)

	if afterScale.Delay != afterFailure.Delay {
		t.Fatalf("scaling-only Add must not reset delay: before=%v after=%v", afterFailure.Delay, afterScale.Delay)
	}
	if afterScale.Pending != 5 {
		t.Fatalf("expected Pending=5, got %d", afterScale.Pending)
	}
}

func TestAddWithConfigChangeResetsDelay(t *testing.T) {
	q := New()
	path := pathid.Clean("/prod/web")
	backoff := types.DefaultBackoffStrategy()

	q.Add(path, 1, types.VersionInfo{LastConfigChangeAt: time.Unix(1000, 0)}, backoff)
	q.RecordLaunchFailure(path, backoff, false, time.Unix(2000, 0))
	afterFailure, _ := q.Request(path)
	if afterFailure.Delay <= time.Duration(backoff.BackoffSeconds*float64(time.Second)) {
		t.Fatalf("expected escalated delay after failure, got %v", afterFailure.Delay)
	}

	q.Add(path, 1, types.VersionInfo{LastConfigChangeAt: time.Unix(3000, 0)}, backoff)
	afterConfigChange, _ := q.Request(path)
	want := time.Duration(backoff.BackoffSeconds * float64(time.Second))
	if afterConfigChange.Delay != want {
		t.Fatalf("expected delay reset to base %v on config change, got %v", want, afterConfigChange.Delay)
	}
}

func TestRecordLaunchFailureEscalatesExponentially(t *testing.T) {
	q := New()
	path := pathid.Clean("/prod/web")
	backoff := types.BackoffStrategy{BackoffSeconds: 1, BackoffFactor: 2, MaxLaunchDelaySeconds: 100}
	q.Add(path, 1, types.VersionInfo{}, backoff)

	now := time.Unix(0, 0)
	q.RecordLaunchFailure(path, backoff, false, now)
	e1, _ := q.Request(path)
	if e1.Delay != 2*time.Second {
		t.Fatalf("expected 2s after first escalation, got %v", e1.Delay)
	}

	q.RecordLaunchFailure(path, backoff, false, now)
	e2, _ := q.Request(path)
	if e2.Delay != 4*time.Second {
		t.Fatalf("expected 4s after second escalation, got %v", e2.Delay)
	}
}

func TestRecordLaunchFailureCapsAtMaxLaunchDelay(t *testing.T) {
	q := New()
	path := pathid.Clean("/prod/web")
	backoff := types.BackoffStrategy{BackoffSeconds: 50, BackoffFactor: 3, MaxLaunchDelaySeconds: 60}
	q.Add(path, 1, types.VersionInfo{}, backoff)

	q.RecordLaunchFailure(path, backoff, false, time.Unix(0, 0))
	e, _ := q.Request(path)
	if e.Delay != 60*time.Second {
		t.Fatalf("expected delay capped at 60s, got %v", e.Delay)
	}
}

func TestRecordLaunchFailureAfterRunningResetsToBase(t *testing.T) {
	q := New()
	path := pathid.Clean("/prod/web")
	backoff := types.BackoffStrategy{BackoffSeconds: 1, BackoffFactor: 2, MaxLaunchDelaySeconds: 100}
	q.Add(path, 1, types.VersionInfo{}, backoff)

	q.RecordLaunchFailure(path, backoff, false, time.Unix(0, 0))
	escalated, _ := q.Request(path)
	if escalated.Delay != 2*time.Second {
		t.Fatalf("expected escalation, got %v", escalated.Delay)
	}

	q.RecordLaunchFailure(path, backoff, true, time.Unix(0, 0))
	reset, _ := q.Request(path)
	if reset.Delay != 1*time.Second {
		t.Fatalf("expected reset to base after intervening TASK_RUNNING, got %v", reset.Delay)
	}
}

func TestOverdueReflectsElapsedDelay(t *testing.T) {
	e := Entry{OverdueAt: time.Unix(100, 0)}
	if e.Overdue(time.Unix(50, 0)) {
		t.Fatalf("expected not overdue before OverdueAt")
	}
	if !e.Overdue(time.Unix(100, 0)) {
		t.Fatalf("expected overdue at exactly OverdueAt")
	}
	if !e.Overdue(time.Unix(150, 0)) {
		t.Fatalf("expected overdue after OverdueAt")
	}
}

func TestPurgeRemovesEntry(t *testing.T) {
	q := New()
	path := pathid.Clean("/prod/web")
	q.Add(path, 1, types.VersionInfo{}, types.DefaultBackoffStrategy())
	q.Purge(path)
	if _, ok := q.Request(path); ok {
		t.Fatalf("expected entry to be gone after Purge")
	}
}

func TestListReturnsAllEntries(t *testing.T) {
	q := New()
	backoff := types.DefaultBackoffStrategy()
	q.Add(pathid.Clean("/prod/a"), 1, types.VersionInfo{}, backoff)
	q.Add(pathid.Clean("/prod/b"), 2, types.VersionInfo{}, backoff)
	if got := len(q.List()); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}
