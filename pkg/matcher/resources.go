package matcher

import "github.com/steward-sh/steward/pkg/types"

// resourcePool groups an offer's role-tagged scalar resources by name, so
// scalar demand satisfaction can greedily consume slices while preserving
// role (spec.md section 4.1 steps 1-2). Mirrors the teacher's
// filter-then-greedily-pick shape in pkg/scheduler's node selection.
type resourcePool struct {
	byName map[string][]Resource
}

func newResourcePool(resources []Resource) *resourcePool {
	p := &resourcePool{byName: make(map[string][]Resource)}
	for _, r := range resources {
		p.byName[r.Name] = append(p.byName[r.Name], r)
	}
	return p
}

// take consumes amount of the named scalar resource, preferring the
// unreserved pool first for non-resident workloads (spec.md section 4.1
// "Tie-breaks"); for resident workloads only reserved slices matching
// principal+labels are eligible. It returns the concrete selections made,
// or ok=false if the pool cannot satisfy amount.
func (p *resourcePool) take(name string, amount float64, resident bool, principal string, labels map[string]string) ([]ResourceSelection, bool) {
	if amount <= 0 {
		return nil, true
	}
	candidates := p.byName[name]
	ordered := orderCandidates(candidates, resident, principal, labels)

	remaining := amount
	var selections []ResourceSelection
	var consumedIdx []int
	for _, c := range ordered {
		if remaining <= 0 {
			break
		}
		take := c.res.Value
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		selections = append(selections, ResourceSelection{Role: c.res.Role, Name: name, Value: take})
		remaining -= take
		// record how much of this specific slice we consumed so we can
		// shrink it in place
		c.res.Value -= take
		candidates[c.idx] = c.res
		consumedIdx = append(consumedIdx, c.idx)
	}
	if remaining > 1e-9 {
		return nil, false
	}
	p.byName[name] = candidates
	return selections, true
}

type candidate struct {
	res Resource
	idx int
}

func orderCandidates(resources []Resource, resident bool, principal string, labels map[string]string) []candidate {
	var eligible []candidate
	for i, r := range resources {
		if resident {
			if !r.Reserved || r.ReservationPrincipal != principal || !labelsMatch(r.ReservationLabels, labels) {
				continue
			}
		}
		eligible = append(eligible, candidate{res: r, idx: i})
	}
	if resident {
		return eligible
	}
	// Non-resident: prefer unreserved slices first (spec.md "Tie-breaks").
	var unreserved, reserved []candidate
	for _, c := range eligible {
		if c.res.Reserved {
			reserved = append(reserved, c)
		} else {
			unreserved = append(unreserved, c)
		}
	}
	return append(unreserved, reserved...)
}

func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// requestForApp extracts the scalar demand from an application spec.
func requestForApp(spec *types.ApplicationSpec) types.ResourceRequest {
	return spec.Resources
}

// requestForPod sums the scalar demand across every container in a pod.
func requestForPod(spec *types.PodSpec) types.ResourceRequest {
	var total types.ResourceRequest
	for _, c := range spec.Containers {
		total.CPUs += c.Resources.CPUs
		total.MemMB += c.Resources.MemMB
		total.DiskMB += c.Resources.DiskMB
		total.GPUs += c.Resources.GPUs
	}
	return total
}
