package health

import "github.com/steward-sh/steward/pkg/types"

// declaredPortNames returns the run-spec's declared port names in the same
// positional order the matcher allocates them in (pkg/matcher's
// declared_ports.go), since a task's Status.Network.HostPorts is parallel
// to that same ordering (spec.md section 3, Task "Network").
func declaredPortNames(rs *types.RunSpec) []string {
	var out []string
	if rs.App != nil {
		for _, p := range rs.App.Ports {
			out = append(out, p.Name)
		}
		for _, m := range rs.App.PortMappings {
			out = append(out, m.Name)
		}
	}
	if rs.Pod != nil {
		for _, c := range rs.Pod.Containers {
			for _, e := range c.Endpoints {
				out = append(out, c.Name+"."+e.Name)
			}
		}
	}
	return out
}

// hostPortForName resolves a declared port name against a task's
// positional host-port assignments. Returns (0, false) if the name is
// unknown or the resolved slot was never host-exposed.
func hostPortForName(rs *types.RunSpec, task *types.Task, name string) (int, bool) {
	if task == nil || name == "" {
		return 0, false
	}
	names := declaredPortNames(rs)
	for i, n := range names {
		if n != name {
			continue
		}
		if i >= len(task.Status.Network.HostPorts) {
			return 0, false
		}
		port := task.Status.Network.HostPorts[i]
		if port <= 0 {
			return 0, false
		}
		return port, true
	}
	return 0, false
}
