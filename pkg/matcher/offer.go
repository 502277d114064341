// Package matcher implements the Resource-Offer Matcher of spec.md section
// 4.1: given a run-spec and a resource offer, decide whether the offer
// satisfies the spec's requirements and, if so, build a concrete launch
// descriptor. Grounded on the teacher's pkg/network/hostports.go (the
// general shape of "enumerate declared ports, build per-port bookkeeping")
// and pkg/scheduler/scheduler.go's filter-then-greedily-pick idiom, adapted
// from node selection to offer-resource consumption.
package matcher

// DiskSourceType enumerates the disk-source kinds relevant to persistent
// volume matching (spec.md section 4.1 step 5).
type DiskSourceType string

const (
	DiskSourceUnreserved DiskSourceType = "UNRESERVED"
	DiskSourceMount      DiskSourceType = "MOUNT"
	DiskSourcePath       DiskSourceType = "PATH"
)

// DiskSource describes one disk resource carried by an offer.
type DiskSource struct {
	Type          DiskSourceType
	PersistenceID string
	Labels        map[string]string
	Role          string
	SizeMB        float64
}

// Resource is one role-tagged scalar slice carried by an offer (cpus, mem,
// disk, gpus).
type Resource struct {
	Role string
	Name string // "cpus", "mem", "disk", "gpus"
	Value float64
	Reserved bool
	ReservationPrincipal string
	ReservationLabels    map[string]string
	Disk                 *DiskSource
}

// PortRange is one role-tagged contiguous port range carried by an offer.
type PortRange struct {
	Role  string
	Begin int
	End   int
}

// Offer is a resource advertisement from the external manager, scoped to
// an agent and a validity window (spec.md GLOSSARY). The validity window
// itself is a matter for the external-manager collaborator (out of scope);
// the matcher only consumes a single offer snapshot.
type Offer struct {
	ID         string
	AgentID    string
	Host       string
	Attributes map[string]string
	Resources  []Resource
	PortRanges []PortRange
}

// filterByRoles returns a copy of o keeping only the resource slices whose
// role is in acceptedRoles; an empty list or one containing "*" accepts
// every role and returns o unchanged.
func (o Offer) filterByRoles(acceptedRoles []string) Offer {
	if len(acceptedRoles) == 0 {
		return o
	}
	accepted := make(map[string]bool, len(acceptedRoles))
	for _, r := range acceptedRoles {
		accepted[r] = true
	}
	if accepted["*"] {
		return o
	}
	filtered := o
	filtered.Resources = nil
	for _, r := range o.Resources {
		if accepted[r.Role] {
			filtered.Resources = append(filtered.Resources, r)
		}
	}
	filtered.PortRanges = nil
	for _, pr := range o.PortRanges {
		if accepted[pr.Role] {
			filtered.PortRanges = append(filtered.PortRanges, pr)
		}
	}
	return filtered
}
