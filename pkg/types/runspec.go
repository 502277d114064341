package types

import (
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
)

// RunSpecKind distinguishes the two run-spec variants.
type RunSpecKind string

const (
	KindApplication RunSpecKind = "application"
	KindPod         RunSpecKind = "pod"
)

// KillSelection picks which instances die first on scale-down or on
// re-observation of a previously lost instance.
type KillSelection string

const (
	KillYoungestFirst KillSelection = "YoungestFirst"
	KillOldestFirst   KillSelection = "OldestFirst"
)

// UpgradeStrategy bounds a rolling restart's health floor and over-capacity
// bubble (spec.md section 3 and 4.6.3).
type UpgradeStrategy struct {
	MinimumHealthCapacity float64 // in [0,1]
	MaximumOverCapacity   float64 // in [0,1]
}

// BackoffStrategy configures the Launch Queue's per-run-spec backoff
// (spec.md section 4.5).
type BackoffStrategy struct {
	BackoffSeconds     float64
	BackoffFactor      float64
	MaxLaunchDelaySeconds float64
}

// DefaultBackoffStrategy mirrors Marathon-style conservative defaults.
func DefaultBackoffStrategy() BackoffStrategy {
	return BackoffStrategy{
		BackoffSeconds:        1,
		BackoffFactor:         1.15,
		MaxLaunchDelaySeconds: 3600,
	}
}

// UnreachableStrategy configures the two-stage unreachable/expunge timers
// (spec.md section 4.3).
type UnreachableStrategy struct {
	TimeUntilInactive time.Duration
	TimeUntilExpunge  time.Duration
}

// DefaultUnreachableStrategy matches the source's conservative default.
func DefaultUnreachableStrategy() UnreachableStrategy {
	return UnreachableStrategy{
		TimeUntilInactive: 5 * time.Minute,
		TimeUntilExpunge:  10 * time.Minute,
	}
}

// ConstraintOperator enumerates the placement-constraint operators of
// spec.md section 4.1.
type ConstraintOperator string

const (
	ConstraintUnique  ConstraintOperator = "UNIQUE"
	ConstraintCluster ConstraintOperator = "CLUSTER"
	ConstraintGroupBy ConstraintOperator = "GROUP_BY"
	ConstraintLike    ConstraintOperator = "LIKE"
	ConstraintUnlike  ConstraintOperator = "UNLIKE"
	ConstraintMaxPer  ConstraintOperator = "MAX_PER"
)

// Constraint is a single placement constraint.
type Constraint struct {
	Field    string
	Operator ConstraintOperator
	Value    string // interpretation depends on Operator: GROUP_BY/MAX_PER take an integer, LIKE/UNLIKE a regex, CLUSTER a literal (or empty)
}

// Residency marks a run-spec as stateful: it holds persistent reservations
// and forbids over-capacity bubbles during rolling restarts.
type Residency struct {
	Enabled          bool
	RelaunchEscalationTimeout time.Duration
}

// PortDefinition declares a port an application wants exposed on the host,
// independent of the container's own network namespace.
type PortDefinition struct {
	Name     string
	Port     int // 0 means dynamically assigned
	Protocol string
	Labels   map[string]string
}

// PortMapping declares a container-network port mapping (container port to
// an optional host port), used by applications running in bridge/user
// container networks and by pods.
type PortMapping struct {
	Name          string
	ContainerPort int
	HostPort      int // 0 = dynamic, -1/absent = container-only (no host exposure)
	Protocol      string
	Role          string // resource role the host port is reserved against; "" means any accepted role
	Labels        map[string]string
}

// HostExposed reports whether this mapping is bound to a host port at all.
func (m PortMapping) HostExposed() bool {
	return m.HostPort >= 0
}

// ResourceRequest is the scalar resource demand of a run-spec (or, for
// pods, of one container within it).
type ResourceRequest struct {
	CPUs float64
	MemMB float64
	DiskMB float64
	GPUs float64
}

// HealthCheckProtocol enumerates the protocols spec.md section 4.4 names.
type HealthCheckProtocol string

const (
	ProtocolHTTP        HealthCheckProtocol = "HTTP"
	ProtocolHTTPS       HealthCheckProtocol = "HTTPS"
	ProtocolTCP         HealthCheckProtocol = "TCP"
	ProtocolMesosHTTP   HealthCheckProtocol = "MESOS_HTTP"
	ProtocolMesosHTTPS  HealthCheckProtocol = "MESOS_HTTPS"
	ProtocolMesosTCP    HealthCheckProtocol = "MESOS_TCP"
	ProtocolCommand     HealthCheckProtocol = "COMMAND"
)

// ExecutedByOrchestrator reports whether the orchestrator itself runs the
// probe (HTTP/HTTPS/TCP) as opposed to delegating to the external manager
// (the MESOS_*/COMMAND variants). Spec.md section 9 design note: this is a
// capability predicate on the variant, not a subclass relation.
func (p HealthCheckProtocol) ExecutedByOrchestrator() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolTCP:
		return true
	default:
		return false
	}
}

// HealthCheckSpec is a declared health check on a run-spec.
type HealthCheckSpec struct {
	Protocol           HealthCheckProtocol
	Path               string // for HTTP/HTTPS
	Command            []string // for COMMAND
	PortName           string // resolves against the run-spec's declared ports
	IntervalSeconds    float64
	TimeoutSeconds     float64
	GracePeriodSeconds float64
	MaxConsecutiveFailures int
	IgnoreHTTP1xx      bool
}

// ReadinessCheckSpec is a declared readiness check, evaluated only during
// deployments (spec.md section 4.4).
type ReadinessCheckSpec struct {
	Name            string
	PortName        string
	Path            string
	IntervalSeconds float64
	TimeoutSeconds  float64
	HTTPStatusCodesForReady []int
}

// VersionInfo distinguishes config-change time from scaling-only time
// (spec.md section 3).
type VersionInfo struct {
	LastScalingAt      time.Time
	LastConfigChangeAt time.Time
}

// RunSpec is the sum-type of Application and Pod (spec.md section 3). One
// and only one of App / Pod is populated, per Kind.
type RunSpec struct {
	Path pathid.Path
	Kind RunSpecKind

	App *ApplicationSpec
	Pod *PodSpec
}

// ID returns the run-spec's identity path as a string, for use as a map
// key or log field.
func (r *RunSpec) ID() string { return string(r.Path) }

// Version returns the run-spec's mutation timestamp, regardless of variant.
func (r *RunSpec) Version() time.Time {
	if r.App != nil {
		return r.App.Version
	}
	if r.Pod != nil {
		return r.Pod.Version
	}
	return time.Time{}
}

// VersionInfoOf returns the run-spec's config/scaling change bookkeeping.
func (r *RunSpec) VersionInfoOf() VersionInfo {
	if r.App != nil {
		return r.App.VersionInfo
	}
	if r.Pod != nil {
		return r.Pod.VersionInfo
	}
	return VersionInfo{}
}

// Dependencies returns the set of Path this run-spec depends on, regardless
// of variant.
func (r *RunSpec) Dependencies() map[pathid.Path]struct{} {
	if r.App != nil {
		return r.App.Dependencies
	}
	if r.Pod != nil {
		return r.Pod.Dependencies
	}
	return nil
}

// Instances returns the declared instance count, regardless of variant.
func (r *RunSpec) Instances() int {
	if r.App != nil {
		return r.App.Instances
	}
	if r.Pod != nil {
		return r.Pod.Instances
	}
	return 0
}

// IsResident reports whether the run-spec holds persistent reservations.
func (r *RunSpec) IsResident() bool {
	if r.App != nil {
		return r.App.Residency.Enabled
	}
	if r.Pod != nil {
		return r.Pod.Residency.Enabled
	}
	return false
}

// UpgradeStrategyOf returns an application's own upgrade strategy as
// declared (a zero value is returned as is). Pods carry no upgrade
// strategy field and always get MinimumHealthCapacity 1.0 and
// MaximumOverCapacity 0.0.
func (r *RunSpec) UpgradeStrategyOf() UpgradeStrategy {
	if r.App != nil {
		return r.App.UpgradeStrategy
	}
	return UpgradeStrategy{MinimumHealthCapacity: 1.0, MaximumOverCapacity: 0.0}
}

// BackoffOf returns the run-spec's Launch Queue backoff strategy,
// regardless of variant.
func (r *RunSpec) BackoffOf() BackoffStrategy {
	if r.App != nil {
		return r.App.Backoff
	}
	if r.Pod != nil {
		return r.Pod.Backoff
	}
	return DefaultBackoffStrategy()
}

// KillSelectionOf returns the run-spec's scale-down/restart kill
// selection, regardless of variant.
func (r *RunSpec) KillSelectionOf() KillSelection {
	if r.App != nil {
		return r.App.KillSelection
	}
	if r.Pod != nil {
		return r.Pod.KillSelection
	}
	return KillYoungestFirst
}

// ConstraintsOf returns the run-spec's placement constraints, regardless
// of variant.
func (r *RunSpec) ConstraintsOf() []Constraint {
	if r.App != nil {
		return r.App.Constraints
	}
	if r.Pod != nil {
		return r.Pod.Constraints
	}
	return nil
}

// ApplicationSpec is a singleton, replicated container specification.
type ApplicationSpec struct {
	Command   string
	Image     string
	Instances int
	Version     time.Time
	VersionInfo VersionInfo

	Resources ResourceRequest
	Ports     []PortDefinition
	PortMappings []PortMapping

	HealthCheck     *HealthCheckSpec
	ReadinessChecks []ReadinessCheckSpec

	Constraints  []Constraint
	Dependencies map[pathid.Path]struct{}

	UpgradeStrategy     UpgradeStrategy
	Backoff             BackoffStrategy
	Unreachable         UnreachableStrategy
	KillSelection       KillSelection
	Residency           Residency

	AcceptedResourceRoles []string
	Env                   map[string]string
	Labels                map[string]string
	Networks              []string
	RequirePorts          bool

	TaskKillGracePeriod time.Duration
}

// ContainerSpec describes one container within a pod.
type ContainerSpec struct {
	Name        string
	Image       string
	Command     []string
	Resources   ResourceRequest
	Endpoints   []PortMapping
	HealthCheck *HealthCheckSpec
	VolumeMounts []VolumeMount
	Env         map[string]string
}

// VolumeMount mounts a shared pod volume into a container.
type VolumeMount struct {
	Name string
	MountPath string
	ReadOnly bool
}

// PodVolume is a volume shared across a pod's containers.
type PodVolume struct {
	Name        string
	PersistentID string // set for resident pods reusing a reservation
	SizeMB      float64
}

// PodSpec is an ordered sequence of co-scheduled containers sharing a
// sandbox.
type PodSpec struct {
	Containers []ContainerSpec
	Volumes    []PodVolume
	Networks   []string
	Instances  int
	Version     time.Time
	VersionInfo VersionInfo

	Constraints  []Constraint
	Dependencies map[pathid.Path]struct{}

	UpgradeStrategy UpgradeStrategy
	Backoff         BackoffStrategy
	Unreachable     UnreachableStrategy
	KillSelection   KillSelection
	Residency       Residency
}
