// Package lifecycle implements the Instance Lifecycle State Machine and
// unreachable/expunge policy of spec.md section 4.3. Grounded on the
// teacher's pkg/reconciler.Reconciler: a ticker-driven "list, inspect,
// mutate" loop with log-and-continue error handling, generalized from
// node/container health reconciliation to the spec's two-stage
// Unreachable -> UnreachableInactive -> expunge instance policy.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/metrics"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

// Config tunes the unreachable-policy loop's cadence (spec.md section
// 4.3 "Unreachable policy").
type Config struct {
	ExpungeInitialDelay time.Duration
	ExpungeInterval     time.Duration
}

// DefaultConfig mirrors Marathon-style conservative defaults.
func DefaultConfig() Config {
	return Config{ExpungeInitialDelay: 1 * time.Minute, ExpungeInterval: 30 * time.Second}
}

// Controller runs the periodic unreachable/expunge sweep over every
// instance the Tracker knows about.
type Controller struct {
	cfg     Config
	tracker *tracker.Tracker
	logger  zerolog.Logger

	stopCh chan struct{}
}

// NewController constructs a lifecycle Controller; Start begins its sweep
// loop. Transitions it drives are published by the Tracker itself, so the
// Controller holds no broker reference of its own.
func NewController(cfg Config, tr *tracker.Tracker) *Controller {
	return &Controller{
		cfg:     cfg,
		tracker: tr,
		logger:  log.WithComponent("lifecycle"),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop terminates the sweep loop. Safe to call once.
func (c *Controller) Stop() {
	close(c.stopCh)
}

func (c *Controller) run(ctx context.Context) {
	select {
	case <-time.After(c.cfg.ExpungeInitialDelay):
	case <-ctx.Done():
		return
	case <-c.stopCh:
		return
	}

	ticker := time.NewTicker(c.cfg.ExpungeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep(ctx)
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		}
	}
}

// sweep runs one unreachable-policy pass (spec.md section 4.3
// "Unreachable policy"): every Unreachable instance that has been so for
// unreachableStrategy.timeUntilInactive is marked UnreachableInactive, and
// every UnreachableInactive instance that has been so for
// unreachableStrategy.timeUntilExpunge is force-expunged. Both timers are
// measured from the instance's own State.Since, so the expunge timer
// starts when the instance is marked inactive; per-task unreachable times
// are not consulted.
func (c *Controller) sweep(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	byPath := c.tracker.InstancesBySpec()
	now := time.Now()
	for _, ids := range byPath {
		for _, id := range ids {
			inst := c.tracker.Instance(id)
			if inst == nil {
				continue
			}
			c.evaluate(ctx, inst, now)
		}
	}
}

func (c *Controller) evaluate(ctx context.Context, inst *types.Instance, now time.Time) {
	switch inst.State.Condition {
	case types.ConditionUnreachable:
		if now.Sub(inst.State.Since) >= inst.UnreachableStrategy.TimeUntilInactive {
			c.markInactive(ctx, inst, now)
		}
	case types.ConditionUnreachableInactive:
		if now.Sub(inst.State.Since) >= inst.UnreachableStrategy.TimeUntilExpunge {
			c.expunge(ctx, inst)
		}
	}
}

func (c *Controller) markInactive(ctx context.Context, inst *types.Instance, now time.Time) {
	eff, err := c.tracker.Process(ctx, tracker.MarkUnreachableInactive{InstanceID: inst.ID, Now: now.UnixNano()})
	if err != nil {
		c.logger.Warn().Err(err).Str("instance_id", inst.ID).Msg("lifecycle: mark-inactive failed")
		return
	}
	if eff.Kind == tracker.EffectFailure {
		c.logger.Warn().Str("instance_id", inst.ID).Str("reason", eff.Reason).Msg("lifecycle: mark-inactive rejected")
	}
}

func (c *Controller) expunge(ctx context.Context, inst *types.Instance) {
	if _, err := c.tracker.Process(ctx, tracker.ForceExpunge{InstanceID: inst.ID, RunSpecPath: inst.RunSpecPath}); err != nil {
		c.logger.Warn().Err(err).Str("instance_id", inst.ID).Msg("lifecycle: expunge failed")
		return
	}
	c.logger.Info().Str("instance_id", inst.ID).Msg("lifecycle: expunged unreachable instance")
}
