package matcher

import "github.com/steward-sh/steward/pkg/types"

// declaredPortsForApp normalizes an application's two port-declaration
// shapes (plain host PortDefinition, container-network PortMapping) into
// the uniform declaredPort view allocatePorts consumes.
func declaredPortsForApp(app *types.ApplicationSpec) []declaredPort {
	var out []declaredPort
	for _, p := range app.Ports {
		out = append(out, declaredPort{
			Name:        p.Name,
			Fixed:       p.Port,
			HostExposed: true,
			Protocol:    protocolOrDefault(p.Protocol),
		})
	}
	for _, m := range app.PortMappings {
		out = append(out, declaredPort{
			Name:          m.Name,
			ContainerPort: m.ContainerPort,
			Fixed:         positiveOrZero(m.HostPort),
			HostExposed:   m.HostExposed(),
			Protocol:      protocolOrDefault(m.Protocol),
		})
	}
	return out
}

// declaredPortsForPod flattens every container's endpoints into a single
// positional port list for the shared sandbox.
func declaredPortsForPod(pod *types.PodSpec) []declaredPort {
	var out []declaredPort
	for _, c := range pod.Containers {
		for _, e := range c.Endpoints {
			out = append(out, declaredPort{
				Name:          c.Name + "." + e.Name,
				ContainerPort: e.ContainerPort,
				Fixed:         positiveOrZero(e.HostPort),
				HostExposed:   e.HostExposed(),
				Protocol:      protocolOrDefault(e.Protocol),
			})
		}
	}
	return out
}

func positiveOrZero(p int) int {
	if p < 0 {
		return 0
	}
	return p
}

func protocolOrDefault(p string) string {
	if p == "" {
		return "tcp"
	}
	return p
}
