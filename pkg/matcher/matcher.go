package matcher

import (
	"fmt"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

// Matcher implements the Resource-Offer Matcher of spec.md section 4.1.
// It is stateless: every call is a fresh evaluation of one offer against
// one run-spec.
type Matcher struct {
	EnvPrefix string
}

// New returns a Matcher; envPrefix is prefixed onto every
// automatically-generated environment variable except the small whitelist
// (spec.md section 4.1.1).
func New(envPrefix string) *Matcher {
	return &Matcher{EnvPrefix: envPrefix}
}

// Input bundles the offer-matching request of spec.md section 4.1.
type Input struct {
	RunSpec       *types.RunSpec
	Offer         Offer
	Running       []*types.Instance // already-running instances of this run-spec, for placement constraints
	AcceptedRoles []string
	TaskID        string // pre-generated task id, embedded in the launch descriptor's env
}

// Match evaluates offer against spec and returns either a launch
// descriptor, a list of no-match reasons, or an error when the run-spec
// itself is structurally invalid (spec.md section 4.1 "Error conditions":
// such defects are rejected before matching begins, never folded into the
// no-match reason list).
func (m *Matcher) Match(in Input) (Result, error) {
	switch {
	case in.RunSpec.App != nil:
		return m.matchApplication(in, in.RunSpec.Path, in.RunSpec.App)
	case in.RunSpec.Pod != nil:
		return m.matchPod(in, in.RunSpec.Path, in.RunSpec.Pod)
	default:
		return Result{}, errs.Validation("run-spec %s has neither App nor Pod set", in.RunSpec.Path)
	}
}

func (m *Matcher) matchApplication(in Input, path pathid.Path, app *types.ApplicationSpec) (Result, error) {
	if err := validateApplication(app); err != nil {
		return Result{}, err
	}

	offer := in.Offer.filterByRoles(in.AcceptedRoles)
	pool := newResourcePool(offer.Resources)

	req := requestForApp(app)
	selections, reasons := takeScalarDemand(pool, req, app.Residency.Enabled, resourcePrincipalApp(app))
	if len(reasons) > 0 {
		return noMatch(reasons...), nil
	}

	declared := declaredPortsForApp(app)
	bindings, portReasons, ok := allocatePorts(declared, offer.PortRanges)
	if !ok {
		return noMatch(portReasons...), nil
	}

	running := runningPlacements(in.Running)
	if ok, cReasons := evaluateConstraints(app.Constraints, offer, running); !ok {
		return noMatch(cReasons...), nil
	}

	var volumeSelections []PersistentVolumeSelection
	if app.Residency.Enabled {
		vs, ok, reason := matchPersistentVolume(offer, path.Base(), resourcePrincipalApp(app))
		if !ok {
			return noMatch(reason), nil
		}
		volumeSelections = vs
	}

	discovery := buildDiscovery(declared, bindings)
	env := buildEnv(envInputs{
		AppID:      string(path),
		AppVersion: app.Version.Format("2006-01-02T15:04:05.000Z"),
		TaskID:     in.TaskID,
		Host:       offer.Host,
		Resources:  req,
		Labels:     app.Labels,
		UserEnv:    app.Env,
		EnvPrefix:  m.EnvPrefix,
		Bindings:   bindings,
	})

	var healthPayload *HealthCheckPayload
	if app.HealthCheck != nil && !app.HealthCheck.Protocol.ExecutedByOrchestrator() {
		healthPayload = translateHealthCheck(app.HealthCheck, bindings)
	}

	descriptor := &LaunchDescriptor{
		OfferID:           offer.ID,
		AgentID:           offer.AgentID,
		Host:              offer.Host,
		Resources:         selections,
		Ports:             bindings,
		Discovery:         discovery,
		Networks:          app.Networks,
		Env:               env,
		Labels:            app.Labels,
		Container:         buildContainerSpecForApp(app),
		HealthCheck:       healthPayload,
		PersistentVolumes: volumeSelections,
	}
	if app.TaskKillGracePeriod > 0 {
		gp := app.TaskKillGracePeriod
		descriptor.KillGracePeriod = &gp
	}
	return matched(descriptor), nil
}

func (m *Matcher) matchPod(in Input, path pathid.Path, pod *types.PodSpec) (Result, error) {
	if err := validatePod(pod); err != nil {
		return Result{}, err
	}

	offer := in.Offer.filterByRoles(in.AcceptedRoles)
	pool := newResourcePool(offer.Resources)

	req := requestForPod(pod)
	selections, reasons := takeScalarDemand(pool, req, pod.Residency.Enabled, "")
	if len(reasons) > 0 {
		return noMatch(reasons...), nil
	}

	declared := declaredPortsForPod(pod)
	bindings, portReasons, ok := allocatePorts(declared, offer.PortRanges)
	if !ok {
		return noMatch(portReasons...), nil
	}

	running := runningPlacements(in.Running)
	if ok, cReasons := evaluateConstraints(pod.Constraints, offer, running); !ok {
		return noMatch(cReasons...), nil
	}

	discovery := buildDiscovery(declared, bindings)
	descriptor := &LaunchDescriptor{
		OfferID:   offer.ID,
		AgentID:   offer.AgentID,
		Host:      offer.Host,
		Resources: selections,
		Ports:     bindings,
		Discovery: discovery,
		Networks:  pod.Networks,
		Env: buildEnv(envInputs{
			AppID:      string(path),
			AppVersion: pod.Version.Format("2006-01-02T15:04:05.000Z"),
			TaskID:     in.TaskID,
			Host:       offer.Host,
			Resources:  req,
			Bindings:   bindings,
			EnvPrefix:  m.EnvPrefix,
		}),
	}
	return matched(descriptor), nil
}

func takeScalarDemand(pool *resourcePool, req types.ResourceRequest, resident bool, principal string) ([]ResourceSelection, []string) {
	var selections []ResourceSelection
	var reasons []string
	for _, dem := range []struct {
		name string
		val  float64
	}{{"cpus", req.CPUs}, {"mem", req.MemMB}, {"disk", req.DiskMB}, {"gpus", req.GPUs}} {
		if dem.val <= 0 {
			continue
		}
		sel, ok := pool.take(dem.name, dem.val, resident, principal, nil)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("insufficient %s: need %.4f", dem.name, dem.val))
			continue
		}
		selections = append(selections, sel...)
	}
	return selections, reasons
}

func resourcePrincipalApp(app *types.ApplicationSpec) string {
	// The framework principal used to reserve resources for a resident
	// application; derived from its labels if set, otherwise empty
	// (matches "the spec's framework-principal" of spec.md section 4.1
	// tie-breaks, without inventing an auth identity system here).
	return app.Labels["principal"]
}
