package matcher

import (
	"sort"
	"strconv"
)

// portAllocator hands out host ports from an offer's port ranges,
// lowest-port-first (spec.md section 4.1 "Tie-breaks": "Port ranges are
// searched in offer order, lowest-port-first"). Scratch state is local to
// a single matcher invocation (spec.md section 9, "Scoped acquisition").
type portAllocator struct {
	free []int // sorted ascending, drained as ports are allocated
}

func newPortAllocator(ranges []PortRange) *portAllocator {
	var free []int
	for _, r := range ranges {
		for p := r.Begin; p <= r.End; p++ {
			free = append(free, p)
		}
	}
	sort.Ints(free)
	return &portAllocator{free: free}
}

// takeFixed allocates a specific port, failing if it is not free.
func (a *portAllocator) takeFixed(port int) bool {
	for i, p := range a.free {
		if p == port {
			a.free = append(a.free[:i], a.free[i+1:]...)
			return true
		}
	}
	return false
}

// takeDynamic allocates the lowest currently-free port.
func (a *portAllocator) takeDynamic() (int, bool) {
	if len(a.free) == 0 {
		return 0, false
	}
	p := a.free[0]
	a.free = a.free[1:]
	return p, true
}

// declaredPort is a normalized view over either a PortDefinition or a
// PortMapping, letting allocatePorts treat both uniformly.
type declaredPort struct {
	Name          string
	ContainerPort int // 0 for a bare PortDefinition (host-only, no container mapping)
	Fixed         int // 0 means dynamic
	HostExposed   bool
	Protocol      string
}

// allocatePorts implements spec.md section 4.1 step 3: for each declared
// port, pick a host port (fixed ports must appear in the offer's ranges;
// 0 means dynamic); container-only ports still get a positional slot with
// HostPort=nil. requirePorts/role-duplication are structural defects of the
// run-spec itself and are rejected in validateApplication before any offer
// reaches this function.
func allocatePorts(declared []declaredPort, offer []PortRange) ([]PortBinding, []string, bool) {
	alloc := newPortAllocator(offer)
	bindings := make([]PortBinding, len(declared))
	var reasons []string

	for i, d := range declared {
		if !d.HostExposed {
			bindings[i] = PortBinding{Name: d.Name, ContainerPort: d.ContainerPort, HostPort: nil, Protocol: d.Protocol}
			continue
		}
		if d.Fixed != 0 {
			if !alloc.takeFixed(d.Fixed) {
				reasons = append(reasons, "fixed port not available in offer: "+strconv.Itoa(d.Fixed))
				return nil, reasons, false
			}
			p := d.Fixed
			bindings[i] = PortBinding{Name: d.Name, ContainerPort: d.ContainerPort, HostPort: &p, Protocol: d.Protocol}
			continue
		}
		p, ok := alloc.takeDynamic()
		if !ok {
			reasons = append(reasons, "no free port available in offer for "+d.Name)
			return nil, reasons, false
		}
		bindings[i] = PortBinding{Name: d.Name, ContainerPort: d.ContainerPort, HostPort: &p, Protocol: d.Protocol}
	}
	return bindings, nil, true
}

