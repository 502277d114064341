package external

import (
	"context"
	"fmt"
	"time"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/types"
)

// RetryBackoff configures the bounded retry the Kill Service applies to a
// resource-manager Kill RPC (spec.md section 7, "External RPC error —
// retried with bounded backoff").
type RetryBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Retries int
}

// DefaultRetryBackoff matches the resource manager's own default launch
// backoff shape, halved: kill is on the critical path of a rolling restart
// and should not wait as long as a launch retry before giving up.
func DefaultRetryBackoff() RetryBackoff {
	return RetryBackoff{Initial: 500 * time.Millisecond, Max: 15 * time.Second, Factor: 2, Retries: 6}
}

// NewKillService constructs a KillService over rm, observing terminal
// acknowledgement through broker (spec.md section 6: "completes when the
// external manager acknowledges a terminal update" — the RPC's own return
// is only the request-sent signal, not the completion signal).
func NewKillService(rm ResourceManager, broker *events.Broker) KillService {
	return &killServiceImpl{rm: rm, broker: broker, backoff: DefaultRetryBackoff()}
}

type killServiceImpl struct {
	rm      ResourceManager
	broker  *events.Broker
	backoff RetryBackoff
}

func (k *killServiceImpl) KillInstance(ctx context.Context, inst *types.Instance, reason string) error {
	return k.KillInstances(ctx, []*types.Instance{inst}, reason)
}

func (k *killServiceImpl) KillInstances(ctx context.Context, insts []*types.Instance, reason string) error {
	for _, inst := range insts {
		if inst.State.Condition.IsUnreachable() {
			return fmt.Errorf("kill service: refusing to kill unreachable instance %s (spec: expunge instead)", inst.ID)
		}
	}

	sub := k.broker.SubscribeTo(events.TypeStatusUpdate)
	defer k.broker.Unsubscribe(sub)

	pending := make(map[string]bool)
	for _, inst := range insts {
		for taskID, task := range inst.Tasks {
			if task.Status.Condition.IsTerminal() {
				continue
			}
			pending[taskID] = true
			if err := k.killWithRetry(ctx, taskID); err != nil {
				return fmt.Errorf("kill service: %s: %w", taskID, err)
			}
		}
	}

	for len(pending) > 0 {
		select {
		case evt := <-sub:
			p, ok := evt.Payload.(events.StatusUpdatePayload)
			if !ok || !pending[p.TaskID] {
				continue
			}
			if cond, known := types.ConditionForReason(types.StatusReason(p.Reason)); known && cond.IsTerminal() {
				delete(pending, p.TaskID)
			}
		case <-ctx.Done():
			return errs.Cancellation("kill service: context done with %d task(s) still pending termination", len(pending))
		}
	}
	return nil
}

func (k *killServiceImpl) killWithRetry(ctx context.Context, taskID string) error {
	delay := k.backoff.Initial
	var lastErr error
	for attempt := 0; attempt <= k.backoff.Retries; attempt++ {
		if err := k.rm.Kill(ctx, taskID); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * k.backoff.Factor)
		if delay > k.backoff.Max {
			delay = k.backoff.Max
		}
	}
	return lastErr
}
