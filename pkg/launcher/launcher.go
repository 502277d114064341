// Package launcher implements the glue actor between the Launch Queue
// (pkg/queue), the Resource-Offer Matcher (pkg/matcher), the External
// Resource Manager collaborator (pkg/external) and the Instance Tracker
// (pkg/tracker): it drains incoming offers against overdue queue demand,
// and feeds pushed status updates back into the Tracker. Grounded on the
// teacher's pkg/scheduler.Scheduler main loop (a single actor ticking over
// demand vs. available capacity, one struct owning a stop channel),
// generalized from a 5-second poll over node capacity to an event-driven
// consumer of a real offer stream, since spec.md section 4.1 models
// matching as offer-driven rather than poll-driven.
package launcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/external"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/matcher"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/queue"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

// RunSpecLookup resolves a run-spec path to its current definition.
type RunSpecLookup func(pathid.Path) (*types.RunSpec, bool)

// Launcher is the single-owner actor consuming offers and status updates.
type Launcher struct {
	tr      *tracker.Tracker
	q       *queue.Queue
	rm      external.ResourceManager
	matcher *matcher.Matcher
	lookup  RunSpecLookup
	logger  zerolog.Logger

	acceptedRoles []string
	done          chan struct{}
}

// New constructs a Launcher. acceptedRoles configures which offer resource
// roles this cluster's specs may consume (spec.md section 4.1); a nil or
// empty slice accepts every role.
func New(tr *tracker.Tracker, q *queue.Queue, rm external.ResourceManager, m *matcher.Matcher, lookup RunSpecLookup, acceptedRoles []string) *Launcher {
	return &Launcher{
		tr: tr, q: q, rm: rm, matcher: m, lookup: lookup,
		acceptedRoles: acceptedRoles,
		logger:        log.WithComponent("launcher"),
		done:          make(chan struct{}),
	}
}

// Start begins consuming offers and status updates until ctx is cancelled
// or Stop is called.
func (l *Launcher) Start(ctx context.Context) error {
	offers, err := l.rm.Offers(ctx)
	if err != nil {
		return err
	}
	go l.runOffers(ctx, offers)
	go l.runStatusUpdates(ctx)
	return nil
}

// Stop terminates the launcher's goroutines. Safe to call once.
func (l *Launcher) Stop() { close(l.done) }

func (l *Launcher) runOffers(ctx context.Context, offers <-chan matcher.Offer) {
	for {
		select {
		case offer, ok := <-offers:
			if !ok {
				return
			}
			l.handleOffer(ctx, offer)
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

// handleOffer tries every overdue, pending queue entry against offer in
// the order queue.List returns them, which is unspecified (no backoff or
// age ordering is applied), stopping at the first match since one offer
// yields at most one
// launch (spec.md section 4.1: an offer is matched against a single
// run-spec, not fanned out across many).
func (l *Launcher) handleOffer(ctx context.Context, offer matcher.Offer) {
	now := time.Now()
	entries := l.q.List()
	for _, e := range entries {
		if e.Pending <= 0 || !e.Overdue(now) {
			continue
		}
		rs, ok := l.lookup(e.RunSpecPath)
		if !ok {
			continue
		}
		running := l.tr.SpecInstances(e.RunSpecPath)
		taskID := uuid.NewString()
		result, err := l.matcher.Match(matcher.Input{
			RunSpec:       rs,
			Offer:         offer,
			Running:       running,
			AcceptedRoles: l.acceptedRoles,
			TaskID:        taskID,
		})
		if err != nil {
			l.logger.Error().Err(err).Str("run_spec", string(e.RunSpecPath)).Msg("launcher: run-spec failed validation, backing off")
			l.q.RecordLaunchFailure(e.RunSpecPath, rs.BackoffOf(), false, now)
			continue
		}
		if !result.Matched {
			continue
		}
		if err := l.rm.Launch(ctx, offer.ID, []external.LaunchTask{{TaskID: taskID, RunSpecPath: string(e.RunSpecPath), Descriptor: *result.Descriptor}}); err != nil {
			l.logger.Warn().Err(err).Str("run_spec", string(e.RunSpecPath)).Msg("launcher: launch RPC failed")
			return
		}
		version := rs.Version()
		if _, err := l.tr.Process(ctx, tracker.LaunchEphemeral{
			RunSpecPath: e.RunSpecPath,
			Version:     version.UnixNano(),
			Agent:       types.AgentInfo{Host: result.Descriptor.Host, AgentID: result.Descriptor.AgentID},
			TaskID:      taskID,
		}); err != nil {
			l.logger.Warn().Err(err).Str("task_id", taskID).Msg("launcher: tracker rejected launch")
			return
		}
		l.q.Decrement(e.RunSpecPath)
		return
	}
}

func (l *Launcher) runStatusUpdates(ctx context.Context) {
	for {
		select {
		case update, ok := <-l.rm.StatusUpdates():
			if !ok {
				return
			}
			l.applyStatusUpdate(ctx, update)
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

func (l *Launcher) applyStatusUpdate(ctx context.Context, update external.StatusUpdate) {
	condition, _ := types.ConditionForReason(update.Reason)
	if _, err := l.tr.Process(ctx, tracker.MesosUpdate{
		TaskID:    update.TaskID,
		Condition: condition,
		Reason:    update.Reason,
		Now:       timestampOrNow(update.Timestamp),
	}); err != nil {
		l.logger.Warn().Err(err).Str("task_id", update.TaskID).Msg("launcher: tracker rejected status update")
		return
	}
	if err := l.rm.Acknowledge(ctx, update); err != nil {
		l.logger.Warn().Err(err).Str("task_id", update.TaskID).Msg("launcher: acknowledge failed")
	}
}

func timestampOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixNano()
	}
	return t.UnixNano()
}
