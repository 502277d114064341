package types

import (
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
)

// AgentInfo identifies the host an instance is placed on.
type AgentInfo struct {
	Host       string
	AgentID    string
	Attributes map[string]string
}

// InstanceState carries the instance's condition, when it entered that
// condition, when it last became active, and its last known health.
type InstanceState struct {
	Condition Condition
	Since     time.Time
	ActiveAt  *time.Time
	Healthy   *bool
}

// TaskVariant enumerates the three task shapes of spec.md section 3.
type TaskVariant string

const (
	TaskReserved            TaskVariant = "Reserved"
	TaskLaunchedEphemeral   TaskVariant = "LaunchedEphemeral"
	TaskLaunchedOnReservation TaskVariant = "LaunchedOnReservation"
)

// NetworkInfo carries the IP addresses and host ports assigned to a task.
type NetworkInfo struct {
	IPAddresses []string
	HostPorts   []int // parallel to the run-spec's declared port order; 0 entries mean "not host-exposed"
}

// TaskStatus is the executor-reported status of a task.
type TaskStatus struct {
	StagedAt  time.Time
	StartedAt *time.Time
	LastReason StatusReason
	Condition Condition
	Network   NetworkInfo
}

// Task is a single executor-level workload belonging to an instance
// (spec.md section 3, "Task").
type Task struct {
	ID         string
	InstanceID string
	Variant    TaskVariant
	Status     TaskStatus
	Reservation      *ReservationInfo
	PersistentVolumeIDs []string
}

// ReservationInfo names the resources held for a Reserved or
// LaunchedOnReservation task.
type ReservationInfo struct {
	Principal string
	Labels    map[string]string
}

// Instance is a single scheduled unit of a run-spec (spec.md section 3,
// "Instance").
type Instance struct {
	ID                 string
	RunSpecPath        pathid.Path
	RunSpecVersion     time.Time
	Agent              AgentInfo
	State              InstanceState
	Tasks              map[string]*Task
	UnreachableStrategy UnreachableStrategy
}

// NewInstance constructs an instance in the Created condition.
func NewInstance(id string, path pathid.Path, version time.Time, agent AgentInfo, us UnreachableStrategy, now time.Time) *Instance {
	return &Instance{
		ID:                  id,
		RunSpecPath:         path,
		RunSpecVersion:      version,
		Agent:               agent,
		State:               InstanceState{Condition: ConditionCreated, Since: now},
		Tasks:               make(map[string]*Task),
		UnreachableStrategy: us,
	}
}

// IsActive reports whether the instance currently counts as active.
func (i *Instance) IsActive() bool { return i.State.Condition.IsActive() }

// IsTerminal reports whether the instance has reached a terminal
// condition.
func (i *Instance) IsTerminal() bool { return i.State.Condition.IsTerminal() }

// IsHealthy reports the instance's last known health, defaulting to true
// when no health check has ever run (spec.md section 4.4 decision rule:
// an instance with no health checks is never marked unhealthy).
func (i *Instance) IsHealthy() bool {
	if i.State.Healthy == nil {
		return true
	}
	return *i.State.Healthy
}

// Clone returns a deep-enough copy of the instance for safe hand-off across
// the Tracker's ownership boundary (spec.md design note: no reference is
// ever an ownership edge across the Tracker boundary).
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	out := *i
	out.Tasks = make(map[string]*Task, len(i.Tasks))
	for id, t := range i.Tasks {
		tc := *t
		tc.Status.Network.IPAddresses = append([]string(nil), t.Status.Network.IPAddresses...)
		tc.Status.Network.HostPorts = append([]int(nil), t.Status.Network.HostPorts...)
		tc.PersistentVolumeIDs = append([]string(nil), t.PersistentVolumeIDs...)
		out.Tasks[id] = &tc
	}
	if i.State.ActiveAt != nil {
		v := *i.State.ActiveAt
		out.State.ActiveAt = &v
	}
	if i.State.Healthy != nil {
		v := *i.State.Healthy
		out.State.Healthy = &v
	}
	return &out
}
