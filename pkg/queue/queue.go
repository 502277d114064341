// Package queue implements the Launch Queue of spec.md section 4.5:
// aggregated pending launch demand per run-spec plus exponential backoff
// on launch failures. Not directly grounded on a single teacher file
// (the teacher schedules synchronously, with no backoff/offer-queue
// concept of its own); built in the actor idiom of
// pkg/scheduler/scheduler.go (a mutex-guarded per-entity map, accessed
// through a small set of named operations) generalized with the backoff
// arithmetic spec.md section 4.5 mandates.
package queue

import (
	"math"
	"sync"
	"time"

	"github.com/steward-sh/steward/pkg/metrics"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

// Entry is one run-spec's launch demand and backoff state.
type Entry struct {
	RunSpecPath pathid.Path
	Pending     int
	Delay       time.Duration
	OverdueAt   time.Time
	ConfigStamp time.Time // last types.VersionInfo.LastConfigChangeAt this entry was reset against
}

// Overdue reports whether this entry's backoff delay has elapsed as of
// now, i.e. it is eligible to consume offers (spec.md section 4.5:
// "delay.overdue").
func (e Entry) Overdue(now time.Time) bool {
	return !now.Before(e.OverdueAt)
}

// Queue is the single-owner actor over every run-spec's launch demand.
type Queue struct {
	mu      sync.Mutex
	entries map[pathid.Path]*Entry
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{entries: make(map[pathid.Path]*Entry)}
}

// Add records count pending launches for path. A change in
// versionInfo.LastConfigChangeAt relative to what this entry last saw
// resets the backoff delay to the spec's configured base (spec.md section
// 4.5: "a configuration change to a spec, not a scaling change, resets
// delay"); a scaling-only change (same config stamp) leaves the delay
// untouched.
func (q *Queue) Add(path pathid.Path, count int, versionInfo types.VersionInfo, backoff types.BackoffStrategy) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[path]
	if !ok {
		e = &Entry{RunSpecPath: path, Delay: baseDelay(backoff), ConfigStamp: versionInfo.LastConfigChangeAt}
		q.entries[path] = e
	} else if !e.ConfigStamp.Equal(versionInfo.LastConfigChangeAt) {
		e.Delay = baseDelay(backoff)
		e.ConfigStamp = versionInfo.LastConfigChangeAt
		e.OverdueAt = time.Time{}
	}
	e.Pending = count
	q.publishMetrics(path, e)
}

// RecordLaunchFailure escalates path's backoff delay (spec.md section
// 4.5: "on each TASK_FAILED without an intervening TASK_RUNNING, delay :=
// min(delay x backoffFactor, maxLaunchDelaySeconds)"). sawRunning must be
// the running-since-last-failure flag the caller tracked for this
// run-spec; a failure after an intervening successful run resets to the
// base delay instead of escalating further.
func (q *Queue) RecordLaunchFailure(path pathid.Path, backoff types.BackoffStrategy, sawRunningSinceLastFailure bool, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[path]
	if !ok {
		e = &Entry{RunSpecPath: path, Delay: baseDelay(backoff)}
		q.entries[path] = e
	}
	if sawRunningSinceLastFailure {
		e.Delay = baseDelay(backoff)
	} else {
		next := e.Delay.Seconds() * backoff.BackoffFactor
		max := backoff.MaxLaunchDelaySeconds
		if max <= 0 {
			max = next
		}
		e.Delay = time.Duration(math.Min(next, max) * float64(time.Second))
	}
	e.OverdueAt = now.Add(e.Delay)
	q.publishMetrics(path, e)
}

// ResetDelay restores path's backoff delay to the configured base,
// independent of any failure/config-change bookkeeping (spec.md section
// 4.5 "resetDelay(spec)"; also used for an operator-forced restart).
func (q *Queue) ResetDelay(path pathid.Path, backoff types.BackoffStrategy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[path]
	if !ok {
		e = &Entry{RunSpecPath: path}
		q.entries[path] = e
	}
	e.Delay = baseDelay(backoff)
	e.OverdueAt = time.Time{}
	q.publishMetrics(path, e)
}

// Decrement reduces path's pending demand by one, floored at zero, without
// touching its backoff delay or config stamp — used by whatever consumes
// overdue entries against incoming offers each time it successfully
// launches one instance.
func (q *Queue) Decrement(path pathid.Path) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[path]
	if !ok {
		return
	}
	if e.Pending > 0 {
		e.Pending--
	}
	q.publishMetrics(path, e)
}

// Purge removes path's entry entirely (spec.md section 4.5
// "purge(spec-id)"), used when a run-spec is deleted.
func (q *Queue) Purge(path pathid.Path) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, path)
	metrics.QueuePending.DeleteLabelValues(string(path))
	metrics.QueueBackoffSeconds.DeleteLabelValues(string(path))
}

// Request returns path's current entry, or (Entry{}, false) if the
// run-spec has no pending demand tracked.
func (q *Queue) Request(path pathid.Path) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[path]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns every tracked entry, for observability (spec.md section
// 4.5 "list()").
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

func (q *Queue) publishMetrics(path pathid.Path, e *Entry) {
	metrics.QueuePending.WithLabelValues(string(path)).Set(float64(e.Pending))
	metrics.QueueBackoffSeconds.WithLabelValues(string(path)).Set(e.Delay.Seconds())
}

func baseDelay(b types.BackoffStrategy) time.Duration {
	return time.Duration(b.BackoffSeconds * float64(time.Second))
}
