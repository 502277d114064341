package matcher

import (
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ResourceSelection names a concrete portion of an offer consumed for one
// scalar demand, preserving the source role (spec.md section 4.1: "never
// silently re-role").
type ResourceSelection struct {
	Role  string
	Name  string
	Value float64
}

// PortBinding is one entry in the launch descriptor's port list, in
// declared order. HostPort is nil for container-only ports (spec.md
// section 4.1 step 3: "still get a positional slot... with None").
type PortBinding struct {
	Name          string
	ContainerPort int
	HostPort      *int
	Protocol      string
}

// DiscoveryPort is one entry of the launch descriptor's discovery-info
// list (spec.md section 4.1 step 6).
type DiscoveryPort struct {
	Name     string
	Number   int
	Protocol string
	Scope    string // "host" or "container"
}

// PersistentVolumeSelection names the disk source consumed for one
// resident-task volume.
type PersistentVolumeSelection struct {
	VolumeName    string
	PersistenceID string
	Role          string
	Reused        bool // true when reusing an existing reservation, false when consuming a fresh MOUNT disk
}

// HealthCheckPayload is the delegated-to-external-manager form of a health
// check declared with a MESOS_*/COMMAND protocol (spec.md section 4.1 step
// 6 and section 4.4).
type HealthCheckPayload struct {
	Protocol string
	Path     string
	Command  []string
	Port     int
	IntervalSeconds float64
	TimeoutSeconds  float64
	GracePeriodSeconds float64
	MaxConsecutiveFailures int
}

// LaunchDescriptor is the atomic result of a successful match (spec.md
// section 4.1 "Result").
type LaunchDescriptor struct {
	OfferID   string
	AgentID   string
	Host      string

	Resources []ResourceSelection
	Ports     []PortBinding
	Discovery []DiscoveryPort
	Networks  []string

	Env    map[string]string
	Labels map[string]string

	Container *specs.Spec

	HealthCheck *HealthCheckPayload
	KillGracePeriod *time.Duration

	PersistentVolumes []PersistentVolumeSelection
}

// Result is the outcome of one matcher invocation: either a match with a
// descriptor, or a data-outcome NoMatch with reasons (spec.md section 4.1
// "Result", section 7: "No-Match... a data outcome, never an error").
type Result struct {
	Matched    bool
	Descriptor *LaunchDescriptor
	Reasons    []string
}

func noMatch(reasons ...string) Result {
	return Result{Matched: false, Reasons: reasons}
}

func matched(d *LaunchDescriptor) Result {
	return Result{Matched: true, Descriptor: d}
}
