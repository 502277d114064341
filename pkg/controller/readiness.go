package controller

import (
	"sync"

	"github.com/steward-sh/steward/pkg/health"
)

// readinessBehavior is the mixin every Deployment Step Controller embeds
// for its "is this instance ready for rollout" bookkeeping (spec.md
// section 4.6: "all share the ReadinessBehavior mixin defined by section
// 4.4's decision rule"). It caches each instance's readiness once
// observed true so that a transient health flap after recording ready
// cannot un-ready an instance except through a terminal event removing it
// from the tracker entirely (spec.md section 8, "ready monotonicity").
type readinessBehavior struct {
	health *health.Engine

	mu    sync.Mutex
	ready map[string]bool
}

func newReadinessBehavior(h *health.Engine) *readinessBehavior {
	return &readinessBehavior{health: h, ready: make(map[string]bool)}
}

// poll reports instID's cached readiness, probing the Health Engine's
// decision rule only if not already recorded ready. justBecameReady is
// true exactly once, on the call that first observes readiness.
func (r *readinessBehavior) poll(instID string) (ready, justBecameReady bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready[instID] {
		return true, false
	}
	if r.health.IsReadyForRollout(instID) {
		r.ready[instID] = true
		return true, true
	}
	return false, false
}

// isReady reports the cached readiness without probing the Health Engine.
func (r *readinessBehavior) isReady(instID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready[instID]
}

// forget drops instID's cached readiness, used once its terminal event has
// been observed so the map doesn't grow unboundedly across a controller's
// lifetime.
func (r *readinessBehavior) forget(instID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ready, instID)
}

// readyCount polls every instance in ids and returns how many are ready.
func (r *readinessBehavior) readyCount(ids []string) int {
	n := 0
	for _, id := range ids {
		if ready, _ := r.poll(id); ready {
			n++
		}
	}
	return n
}
