package health

import (
	"fmt"

	"github.com/steward-sh/steward/pkg/types"
)

// checkTarget is one declared health check, normalized across the
// Application/Pod run-spec variants. Key is "" for an application's single
// check, or the owning container's name for a pod.
type checkTarget struct {
	Key      string
	Spec     *types.HealthCheckSpec
	PortName string
}

// readinessTarget is one declared readiness check (spec.md section 4.4;
// readiness checks only exist on applications).
type readinessTarget struct {
	Spec     types.ReadinessCheckSpec
	PortName string
}

func declaredHealthChecks(rs *types.RunSpec) []checkTarget {
	var out []checkTarget
	if rs.App != nil && rs.App.HealthCheck != nil {
		out = append(out, checkTarget{Spec: rs.App.HealthCheck, PortName: rs.App.HealthCheck.PortName})
	}
	if rs.Pod != nil {
		for _, c := range rs.Pod.Containers {
			if c.HealthCheck == nil {
				continue
			}
			portName := c.HealthCheck.PortName
			if portName != "" {
				portName = c.Name + "." + portName
			}
			out = append(out, checkTarget{Key: c.Name, Spec: c.HealthCheck, PortName: portName})
		}
	}
	return out
}

func declaredReadinessChecks(rs *types.RunSpec) []readinessTarget {
	var out []readinessTarget
	if rs.App == nil {
		return out
	}
	for _, rc := range rs.App.ReadinessChecks {
		out = append(out, readinessTarget{Spec: rc, PortName: rc.PortName})
	}
	return out
}

// buildChecker constructs the Checker for one probe, resolving the
// declared port name against the instance's primary task and the
// protocol's scheme. accept, when non-nil, restricts an HTTP checker to an
// explicit status-code allowlist instead of the default 2xx-3xx range
// (spec.md section 4.4 readiness "HTTPStatusCodesForReady").
func buildChecker(rs *types.RunSpec, inst *types.Instance, task *types.Task, protocol types.HealthCheckProtocol, portName, path string, accept []int) (Checker, bool) {
	port, ok := hostPortForName(rs, task, portName)
	if !ok {
		return nil, false
	}
	addr := fmt.Sprintf("%s:%d", inst.Agent.Host, port)

	switch protocol {
	case types.ProtocolTCP:
		return NewTCPChecker(addr), true
	case types.ProtocolHTTP, types.ProtocolHTTPS:
		scheme := "http"
		if protocol == types.ProtocolHTTPS {
			scheme = "https"
		}
		checker := NewHTTPChecker(fmt.Sprintf("%s://%s%s", scheme, addr, path))
		checker.AcceptedStatuses = accept
		return checker, true
	default:
		return nil, false
	}
}
