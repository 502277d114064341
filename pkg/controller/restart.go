package controller

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/types"
)

// RestartController implements spec.md section 4.6.3: replace every
// currently-active instance whose version differs from rs's target
// version, bounded by a health floor and an over-capacity ceiling derived
// from rs's upgrade strategy.
type RestartController struct {
	c      Collaborators
	logger zerolog.Logger
}

// NewRestartController constructs a RestartController over c.
func NewRestartController(c Collaborators) *RestartController {
	return &RestartController{c: c, logger: newLogger("restart")}
}

// Run drives rs's fleet from its currently-active instances to all
// instances at rs's target version. Reaching N ready instances at target
// version with no surviving old instance completes the step; shutdown
// cancels it without killing any instance still ramping up.
func (rc *RestartController) Run(ctx context.Context, rs *types.RunSpec, shutdown <-chan struct{}) error {
	path := rs.Path
	target := rs.Version()

	active := activeInstances(rc.c.Tracker, path)
	var toKillAll, alreadyUp []*types.Instance
	for _, inst := range active {
		if inst.RunSpecVersion.Equal(target) {
			alreadyUp = append(alreadyUp, inst)
		} else {
			toKillAll = append(toKillAll, inst)
		}
	}

	n := rs.Instances()
	m := len(toKillAll)
	strategy := rs.UpgradeStrategyOf()
	minHealthy := int(math.Ceil(float64(n) * strategy.MinimumHealthCapacity))
	maxCapacity := int(math.Floor(float64(n) * (1 + strategy.MaximumOverCapacity)))
	nrToKillImmediately := m - minHealthy
	if nrToKillImmediately < 0 {
		nrToKillImmediately = 0
	}
	if minHealthy == maxCapacity && minHealthy <= m {
		if rs.IsResident() {
			nrToKillImmediately = m - minHealthy + 1
		} else {
			maxCapacity++
		}
	}
	if !(minHealthy < maxCapacity || m-nrToKillImmediately < maxCapacity) {
		rc.logger.Warn().Str("run_spec", string(path)).Msg("restart controller: upgrade strategy cannot make progress (minHealthy >= maxCapacity and no capacity freed by the immediate kill batch)")
	}

	sortBySelection(toKillAll, rs.KillSelectionOf())
	pendingKill := append([]*types.Instance(nil), toKillAll...)
	aliveOld := make(map[string]bool, m)
	for _, inst := range toKillAll {
		aliveOld[inst.ID] = true
	}
	liveNew := make(map[string]bool, n)
	for _, inst := range alreadyUp {
		liveNew[inst.ID] = true
	}

	rb := newReadinessBehavior(rc.c.Health)
	rc.c.Queue.ResetDelay(path, rs.BackoffOf())

	sub := rc.c.Broker.SubscribeTo(events.TypeInstanceChanged, events.TypeInstanceHealthChanged)
	defer rc.c.Broker.Unsubscribe(sub)

	killFront := func(count int) {
		for i := 0; i < count && len(pendingKill) > 0; i++ {
			victim := pendingKill[0]
			pendingKill = pendingKill[1:]
			go rc.killOne(ctx, victim)
		}
	}
	recompute := func() {
		oldRemaining := len(aliveOld)
		started := len(liveNew)
		leftCapacity := maxCapacity - oldRemaining - started
		if leftCapacity < 0 {
			leftCapacity = 0
		}
		notYetStarted := n - started
		if notYetStarted < 0 {
			notYetStarted = 0
		}
		launchNow := notYetStarted
		if leftCapacity < launchNow {
			launchNow = leftCapacity
		}
		rc.c.Queue.Add(path, launchNow, rs.VersionInfoOf(), rs.BackoffOf())
	}
	complete := func() bool {
		return len(aliveOld) == 0 && rb.readyCount(keysOf(liveNew)) >= n
	}

	killFront(nrToKillImmediately)
	recompute()
	if complete() {
		return nil
	}

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return errs.Cancellation("restart controller: event bus closed for %s", path)
			}
			if p, ok := runSpecOf(evt); !ok || p != path {
				continue
			}
			instID, ok := instanceIDOf(evt)
			if !ok {
				continue
			}

			if cp, isChanged := evt.Payload.(events.InstanceChangedPayload); isChanged {
				if types.Condition(cp.Condition).IsTerminal() {
					delete(aliveOld, instID)
					delete(liveNew, instID)
					rb.forget(instID)
					recompute()
					if complete() {
						return nil
					}
					continue
				}
			}

			if inst := rc.c.Tracker.Instance(instID); inst != nil && !aliveOld[instID] && inst.RunSpecVersion.Equal(target) {
				liveNew[instID] = true
			}
			if liveNew[instID] {
				if ready, justBecameReady := rb.poll(instID); ready && justBecameReady {
					killFront(1)
				}
			}
			recompute()
			if complete() {
				return nil
			}

		case <-shutdown:
			return errs.Cancellation("restart controller: shutdown for %s", path)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rc *RestartController) killOne(ctx context.Context, inst *types.Instance) {
	if err := rc.c.Kill.KillInstance(ctx, inst, "RollingRestart"); err != nil {
		rc.logger.Warn().Err(err).Str("instance_id", inst.ID).Msg("restart controller: kill failed")
	}
}
