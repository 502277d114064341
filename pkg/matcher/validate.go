package matcher

import (
	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/types"
)

// validateApplication rejects run-specs whose declared ports are internally
// inconsistent before any offer is consulted (spec.md section 4.1: matching
// never hides a Validation-class defect behind a No-Match reason list).
func validateApplication(app *types.ApplicationSpec) error {
	if err := validatePortNames(app.Ports, app.PortMappings, app.HealthCheck); err != nil {
		return err
	}
	if err := validateRequirePorts(declaredPortsForApp(app), app.RequirePorts); err != nil {
		return err
	}
	return validateRoleDuplication(app.PortMappings)
}

// validatePod is validateApplication's pod counterpart: a pod has no
// requirePorts flag of its own, but its containers' endpoints are still
// subject to the same name and role-duplication checks.
func validatePod(pod *types.PodSpec) error {
	seen := make(map[string]bool)
	var mappings []types.PortMapping
	for _, c := range pod.Containers {
		for _, e := range c.Endpoints {
			if e.Name != "" {
				name := c.Name + "." + e.Name
				if seen[name] {
					return errs.Validation("duplicate port name %q", name)
				}
				seen[name] = true
			}
			mappings = append(mappings, e)
		}
	}
	return validateRoleDuplication(mappings)
}

func validatePortNames(ports []types.PortDefinition, mappings []types.PortMapping, hc *types.HealthCheckSpec) error {
	seen := make(map[string]bool)
	for _, p := range ports {
		if p.Name == "" {
			continue
		}
		if seen[p.Name] {
			return errs.Validation("duplicate port name %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, m := range mappings {
		if m.Name == "" {
			continue
		}
		if seen[m.Name] {
			return errs.Validation("duplicate port name %q", m.Name)
		}
		seen[m.Name] = true
	}
	if hc != nil && hc.PortName != "" && !seen[hc.PortName] {
		return errs.Validation("health check references undeclared port %q", hc.PortName)
	}
	return nil
}

// validateRequirePorts implements spec.md section 4.1 step 3's requirePorts
// clause: requirePorts=true forbids remapping of declared ports, so every
// host-exposed port must already carry a fixed value before any offer is
// consulted.
func validateRequirePorts(declared []declaredPort, requirePorts bool) error {
	if !requirePorts {
		return nil
	}
	for _, d := range declared {
		if d.HostExposed && d.Fixed == 0 {
			return errs.Validation("requirePorts set but port %q has no fixed host port declared", d.Name)
		}
	}
	return nil
}

// validateRoleDuplication rejects two port-mappings that claim the same
// fixed host port under distinct resource roles (spec.md section 4.1
// "Error conditions": "port-mapping duplication on distinct roles") — the
// underlying host port is a single resource regardless of which role's
// accounting it is drawn against.
func validateRoleDuplication(mappings []types.PortMapping) error {
	byPort := make(map[int]string)
	for _, m := range mappings {
		if m.HostPort <= 0 {
			continue
		}
		if role, ok := byPort[m.HostPort]; ok && role != m.Role {
			return errs.Validation("port %d claimed under distinct roles %q and %q", m.HostPort, role, m.Role)
		}
		byPort[m.HostPort] = m.Role
	}
	return nil
}
