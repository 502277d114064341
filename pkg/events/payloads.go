package events

import "github.com/steward-sh/steward/pkg/pathid"

// InstanceChangedPayload accompanies TypeInstanceChanged.
type InstanceChangedPayload struct {
	InstanceID string
	RunSpec    pathid.Path
	Condition  string
}

// InstanceHealthChangedPayload accompanies TypeInstanceHealthChanged.
type InstanceHealthChangedPayload struct {
	InstanceID string
	RunSpec    pathid.Path
	Healthy    bool
}

// StatusUpdatePayload accompanies TypeStatusUpdate.
type StatusUpdatePayload struct {
	TaskID     string
	InstanceID string
	Reason     string
}

// FailedHealthCheckPayload accompanies TypeFailedHealthCheck and
// TypeUnhealthyTaskKill.
type FailedHealthCheckPayload struct {
	InstanceID string
	RunSpec    pathid.Path
	Reason     string
}

// DeploymentPayload accompanies TypeDeploymentInfo/Success/Failed.
type DeploymentPayload struct {
	PlanID string
	Reason string // set on failure/cancellation
}

// DeploymentStepPayload accompanies TypeDeploymentStepSuccess/Failure.
type DeploymentStepPayload struct {
	PlanID    string
	StepIndex int
	Reason    string
}

// GroupChangePayload accompanies TypeGroupChangeSuccess/Failed.
type GroupChangePayload struct {
	Path   pathid.Path
	Reason string
}
