package matcher

import "github.com/steward-sh/steward/pkg/types"

// buildDiscovery builds the launch descriptor's discovery-info list: one
// entry per declared port, in declared order (spec.md section 4.1 step 6).
// A host-exposed port carries its allocated host port and scope "host"; a
// container-only port carries its container port and scope "container".
func buildDiscovery(declared []declaredPort, bindings []PortBinding) []DiscoveryPort {
	var out []DiscoveryPort
	for i, d := range declared {
		b := bindings[i]
		entry := DiscoveryPort{
			Name:     d.Name,
			Number:   d.ContainerPort,
			Protocol: d.Protocol,
			Scope:    "container",
		}
		if b.HostPort != nil {
			entry.Number = *b.HostPort
			entry.Scope = "host"
		}
		out = append(out, entry)
	}
	return out
}

// translateHealthCheck converts a delegated health check's declared port
// name into a concrete HealthCheckPayload carrying the allocated host
// port, for checks whose protocol is executed by the external manager
// (MESOS_*/COMMAND; spec.md section 4.4).
func translateHealthCheck(hc *types.HealthCheckSpec, bindings []PortBinding) *HealthCheckPayload {
	payload := &HealthCheckPayload{
		Protocol:               string(hc.Protocol),
		Path:                   hc.Path,
		Command:                hc.Command,
		IntervalSeconds:        hc.IntervalSeconds,
		TimeoutSeconds:         hc.TimeoutSeconds,
		GracePeriodSeconds:     hc.GracePeriodSeconds,
		MaxConsecutiveFailures: hc.MaxConsecutiveFailures,
	}
	for _, b := range bindings {
		if b.Name == hc.PortName && b.HostPort != nil {
			payload.Port = *b.HostPort
			break
		}
	}
	return payload
}
