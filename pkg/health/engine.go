package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/metrics"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

// RunSpecLookup resolves a run-spec's current definition by path, the way
// the Engine learns what checks a newly-Running instance declares.
type RunSpecLookup func(pathid.Path) (*types.RunSpec, bool)

// Engine runs every HTTP/HTTPS/TCP health check and readiness check the
// orchestrator executes itself (spec.md section 4.4; MESOS_*/COMMAND
// checks are delegated to the external manager and are not probed here).
// One worker goroutine per declared check per running instance, watching
// the Tracker's InstanceChanged stream to know when to start and stop.
type Engine struct {
	tr      *tracker.Tracker
	broker  *events.Broker
	resolve RunSpecLookup
	logger  zerolog.Logger

	mu      sync.Mutex
	tracked map[string]*instanceMonitor

	stopCh chan struct{}
}

type instanceMonitor struct {
	cancel  context.CancelFunc
	health  map[string]*Status // keyed by checkTarget.Key ("" for App-level)
	ready   map[string]bool    // keyed by readiness check Name
	started time.Time
}

func (m *instanceMonitor) allHealthy() bool {
	for _, st := range m.health {
		if !st.Healthy {
			return false
		}
	}
	return true
}

func (m *instanceMonitor) allReady(targets []readinessTarget) bool {
	for _, t := range targets {
		if !m.ready[t.Spec.Name] {
			return false
		}
	}
	return true
}

// NewEngine constructs an Engine. Start begins watching the Tracker.
func NewEngine(tr *tracker.Tracker, broker *events.Broker, resolve RunSpecLookup) *Engine {
	return &Engine{
		tr:      tr,
		broker:  broker,
		resolve: resolve,
		logger:  log.WithComponent("health"),
		tracked: make(map[string]*instanceMonitor),
		stopCh:  make(chan struct{}),
	}
}

// Start subscribes to the instance-changed stream and begins reconciling.
func (e *Engine) Start(ctx context.Context) {
	sub := e.broker.SubscribeTo(events.TypeInstanceChanged)
	go e.run(ctx, sub)
}

// Stop ends all monitor workers. Safe to call once.
func (e *Engine) Stop() { close(e.stopCh) }

func (e *Engine) run(ctx context.Context, sub events.Subscriber) {
	defer e.broker.Unsubscribe(sub)
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			payload, ok := evt.Payload.(events.InstanceChangedPayload)
			if !ok {
				continue
			}
			e.reconcile(ctx, payload.InstanceID)
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		}
	}
}

// reconcile starts or tears down an instance's monitor in response to its
// latest condition.
func (e *Engine) reconcile(ctx context.Context, instID string) {
	inst := e.tr.Instance(instID)

	e.mu.Lock()
	mon, tracked := e.tracked[instID]
	e.mu.Unlock()

	if inst == nil || inst.IsTerminal() || inst.State.Condition.IsUnreachable() {
		if tracked {
			mon.cancel()
			e.mu.Lock()
			delete(e.tracked, instID)
			e.mu.Unlock()
		}
		return
	}

	if tracked || inst.State.Condition != types.ConditionRunning {
		return
	}

	rs, ok := e.resolve(inst.RunSpecPath)
	if !ok {
		return
	}

	mctx, cancel := context.WithCancel(ctx)
	mon = &instanceMonitor{
		cancel:  cancel,
		health:  make(map[string]*Status),
		ready:   make(map[string]bool),
		started: time.Now(),
	}
	e.mu.Lock()
	e.tracked[instID] = mon
	e.mu.Unlock()

	for _, target := range declaredHealthChecks(rs) {
		if !target.Spec.Protocol.ExecutedByOrchestrator() {
			continue
		}
		st := NewStatus(time.Now())
		mon.health[target.Key] = st
		go e.runHealthWorker(mctx, instID, rs, target, st)
	}

	if readyTargets := declaredReadinessChecks(rs); len(readyTargets) > 0 {
		go e.runReadinessGate(mctx, instID, rs, mon, readyTargets)
	}
}

func (e *Engine) runHealthWorker(ctx context.Context, instID string, rs *types.RunSpec, target checkTarget, st *Status) {
	interval := secondsOrDefault(target.Spec.IntervalSeconds, 60*time.Second)
	first := interval
	if first > 5*time.Second {
		first = 5 * time.Second
	}
	grace := secondsOrDefault(target.Spec.GracePeriodSeconds, 5*time.Minute)
	maxFailures := target.Spec.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}

	timer := time.NewTimer(first)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			e.probeHealth(ctx, instID, rs, target, st, grace, maxFailures)
			timer.Reset(interval)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) probeHealth(ctx context.Context, instID string, rs *types.RunSpec, target checkTarget, st *Status, grace time.Duration, maxFailures int) {
	inst := e.tr.Instance(instID)
	if inst == nil {
		return
	}
	task := primaryTask(inst)
	if task == nil || task.Status.Condition != types.ConditionRunning {
		// spec.md section 4.4: tasks in non-Running conditions suppress
		// failures; skipping the probe entirely achieves the same effect
		// without a spurious network call.
		return
	}

	checker, ok := buildChecker(rs, inst, task, target.Spec.Protocol, target.PortName, target.Spec.Path, nil)
	if !ok {
		return
	}

	timeout := secondsOrDefault(target.Spec.TimeoutSeconds, 10*time.Second)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	timer := metrics.NewTimer()
	result := checker.Check(cctx)
	cancel()
	metrics.HealthCheckDuration.WithLabelValues(string(target.Spec.Protocol), fmt.Sprintf("%t", result.Healthy)).Observe(timer.Elapsed().Seconds())

	e.mu.Lock()
	suppressed := !result.Healthy && st.SuppressGraceFailure(result.CheckedAt, grace)
	changed := st.Update(result, maxFailures, suppressed)
	fireKill := st.ShouldFireKillIntent(maxFailures)
	e.mu.Unlock()

	if changed {
		e.broker.Publish(&events.Event{
			Type: events.TypeInstanceHealthChanged,
			Payload: events.InstanceHealthChangedPayload{
				InstanceID: instID,
				RunSpec:    inst.RunSpecPath,
				Healthy:    result.Healthy,
			},
		})
	}

	if fireKill {
		if inst.State.Condition.IsUnreachable() {
			e.logger.Info().Str("instance_id", instID).Msg("health: unreachable instance exceeded consecutive failures, skipping kill intent")
			return
		}
		e.broker.Publish(&events.Event{
			Type: events.TypeFailedHealthCheck,
			Payload: events.FailedHealthCheckPayload{
				InstanceID: instID,
				RunSpec:    inst.RunSpecPath,
				Reason:     "FailedHealthChecks",
			},
		})
	}
}

func (e *Engine) runReadinessGate(ctx context.Context, instID string, rs *types.RunSpec, mon *instanceMonitor, targets []readinessTarget) {
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(t readinessTarget) {
			defer wg.Done()
			e.runReadinessWorker(ctx, instID, rs, t, mon)
		}(target)
	}
	wg.Wait()
}

func (e *Engine) runReadinessWorker(ctx context.Context, instID string, rs *types.RunSpec, target readinessTarget, mon *instanceMonitor) {
	interval := secondsOrDefault(target.Spec.IntervalSeconds, 10*time.Second)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			inst := e.tr.Instance(instID)
			if inst == nil {
				return
			}
			task := primaryTask(inst)
			if task != nil {
				checker, ok := buildChecker(rs, inst, task, types.ProtocolHTTP, target.PortName, target.Spec.Path, target.Spec.HTTPStatusCodesForReady)
				if ok {
					timeout := secondsOrDefault(target.Spec.TimeoutSeconds, 10*time.Second)
					cctx, cancel := context.WithTimeout(ctx, timeout)
					result := checker.Check(cctx)
					cancel()
					if result.Healthy {
						e.mu.Lock()
						mon.ready[target.Spec.Name] = true
						e.mu.Unlock()
						return
					}
				}
			}
			timer.Reset(interval)
		case <-ctx.Done():
			return
		}
	}
}

// IsReadyForRollout implements spec.md section 4.4's four-case decision
// rule consumed by the deployment step controllers.
func (e *Engine) IsReadyForRollout(instID string) bool {
	inst := e.tr.Instance(instID)
	if inst == nil || inst.State.Condition != types.ConditionRunning {
		return false
	}
	rs, ok := e.resolve(inst.RunSpecPath)
	if !ok {
		return false
	}
	healthTargets := declaredHealthChecks(rs)
	readyTargets := declaredReadinessChecks(rs)

	e.mu.Lock()
	mon := e.tracked[instID]
	var healthy, ready bool
	if mon != nil {
		healthy = mon.allHealthy()
		ready = mon.allReady(readyTargets)
	}
	e.mu.Unlock()

	switch {
	case len(healthTargets) == 0 && len(readyTargets) == 0:
		return true
	case len(healthTargets) > 0 && len(readyTargets) == 0:
		return healthy
	case len(healthTargets) == 0 && len(readyTargets) > 0:
		return ready
	default:
		return healthy && ready
	}
}

func primaryTask(inst *types.Instance) *types.Task {
	for _, t := range inst.Tasks {
		if t.Variant != types.TaskReserved {
			return t
		}
	}
	return nil
}

func secondsOrDefault(s float64, def time.Duration) time.Duration {
	if s <= 0 {
		return def
	}
	return time.Duration(s * float64(time.Second))
}
