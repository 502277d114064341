// Package health implements the Health & Readiness Engine of spec.md
// section 4.4: one probing worker per declared check on a running instance,
// consecutive-failure bookkeeping feeding a kill intent, and a readiness
// gate consulted by the deployment step controllers. Grounded on the
// teacher's pkg/health.Checker/Result/Status (HTTPChecker/TCPChecker kept
// close to verbatim in pkg/health/http.go and pkg/health/tcp.go; the
// COMMAND/exec variant is not adapted here since spec.md delegates it to
// the external manager rather than executing it locally).
package health

import (
	"context"
	"time"
)

// CheckType names which protocol a Checker probes.
type CheckType string

const (
	CheckTypeHTTP CheckType = "HTTP"
	CheckTypeTCP  CheckType = "TCP"
)

// Result is the outcome of a single probe.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker performs one health or readiness probe.
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Status tracks one declared check's consecutive-failure bookkeeping
// (spec.md section 4.4, and section 9 Open Question (b)).
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
	everSucceeded        bool
	killFired            bool
}

// NewStatus returns a Status that starts healthy, matching the teacher's
// "assume healthy until proven otherwise" default.
func NewStatus(startedAt time.Time) *Status {
	return &Status{Healthy: true, StartedAt: startedAt}
}

// Update folds one probe result into the status. suppressed marks a
// failure that must not count against consecutive-failure bookkeeping
// (spec.md section 4.4: grace-period-with-no-prior-success, and
// non-Running tasks). It mutates the consecutive counters first and only
// then compares against maxConsecutiveFailures, so a failure that pushes
// the count to exactly the threshold is the one that flips Healthy —
// preserved from the teacher's own Status.Update ordering.
func (s *Status) Update(result Result, maxConsecutiveFailures int, suppressed bool) (changed bool) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result
	wasHealthy := s.Healthy

	switch {
	case result.Healthy:
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.everSucceeded = true
		s.Healthy = true
		s.killFired = false
	case suppressed:
		// Does not touch the counters: a suppressed failure never happened
		// for bookkeeping purposes.
	default:
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
		if s.ConsecutiveFailures >= maxConsecutiveFailures {
			s.Healthy = false
		}
	}
	return wasHealthy != s.Healthy
}

// ShouldFireKillIntent reports whether this update just crossed the
// consecutive-failure threshold and no kill intent has fired since the
// last recovery (spec.md section 4.4: publish once per failure episode,
// not on every subsequent tick).
func (s *Status) ShouldFireKillIntent(maxConsecutiveFailures int) bool {
	if s.Healthy || s.killFired || s.ConsecutiveFailures < maxConsecutiveFailures {
		return false
	}
	s.killFired = true
	return true
}

// InGracePeriod reports whether now is still within the per-task grace
// period counted from startedAt (spec.md section 4.4).
func InGracePeriod(startedAt, now time.Time, gracePeriod time.Duration) bool {
	if gracePeriod <= 0 {
		return false
	}
	return now.Sub(startedAt) < gracePeriod
}

// SuppressGraceFailure reports whether a failing result at now should be
// suppressed because the check has never yet succeeded and is still
// within its grace period (spec.md section 4.4: "failures during
// gracePeriod with no prior success are suppressed").
func (s *Status) SuppressGraceFailure(now time.Time, gracePeriod time.Duration) bool {
	return !s.everSucceeded && InGracePeriod(s.StartedAt, now, gracePeriod)
}
