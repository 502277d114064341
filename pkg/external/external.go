// Package external defines the collaborator contracts of spec.md section 6
// that sit outside the deployment core's process boundary: the resource
// manager offering and accounting for cluster capacity, the service that
// turns a kill intent into an acknowledged terminal status update, and
// leader election across a cluster of core replicas. Grounded on the
// teacher's pkg/client (resource-manager RPC client) and pkg/manager
// (Raft-backed leadership), generalized from warren's fixed Mesos-style
// wire protocol to the plain Go interfaces the deployment core actually
// calls through.
package external

import (
	"context"
	"time"

	"github.com/steward-sh/steward/pkg/matcher"
	"github.com/steward-sh/steward/pkg/types"
)

// LaunchTask is one task-info the core asks the resource manager to launch
// against an accepted offer.
type LaunchTask struct {
	TaskID      string
	RunSpecPath string
	Descriptor  matcher.LaunchDescriptor
}

// StatusUpdate is a push notification from the resource manager reporting a
// task's new condition (spec.md section 6, "push of status-update").
type StatusUpdate struct {
	TaskID    string
	Reason    types.StatusReason
	Timestamp time.Time
}

// ResourceManager is the External Resource Manager collaborator of spec.md
// section 6: a stream of offers plus the launch/kill/reconcile/acknowledge
// operations and the status-update push.
type ResourceManager interface {
	// Offers returns a channel of resource offers, closed when ctx is
	// cancelled or the underlying connection is lost.
	Offers(ctx context.Context) (<-chan matcher.Offer, error)
	// Launch accepts offerID and launches tasks against it.
	Launch(ctx context.Context, offerID string, tasks []LaunchTask) error
	// Kill requests termination of a single task.
	Kill(ctx context.Context, taskID string) error
	// Reconcile asks the resource manager to resend status for taskIDs,
	// used after a restart to recover in-flight state.
	Reconcile(ctx context.Context, taskIDs []string) error
	// Acknowledge confirms receipt of a status update, letting the
	// resource manager stop redelivering it.
	Acknowledge(ctx context.Context, update StatusUpdate) error
	// StatusUpdates returns the channel of pushed status updates.
	StatusUpdates() <-chan StatusUpdate
}

// KillService is the Kill Service collaborator of spec.md section 6:
// killInstance/killInstances complete only once the resource manager's
// acknowledged terminal update has been observed, never merely once the
// kill request was sent. Spec.md invariant "Unreachable safety": neither
// method may be called against an instance already Unreachable* — callers
// must expunge those instead.
type KillService interface {
	KillInstance(ctx context.Context, inst *types.Instance, reason string) error
	KillInstances(ctx context.Context, insts []*types.Instance, reason string) error
}

// LeaderElector is the Leader Election collaborator of spec.md section 6.
type LeaderElector interface {
	IsLeader() bool
	// LeadershipLost returns a channel that receives once when this node
	// stops being leader; the executor reacts by issuing Shutdown to every
	// live controller.
	LeadershipLost() <-chan struct{}
}
