package matcher

import "github.com/steward-sh/steward/pkg/types"

// runningPlacements projects already-running instances down to the
// attribute view the constraint evaluator needs, folding the instance's
// host name in alongside its agent attributes so a "hostname" field
// constraint works the same way it does against an offer.
func runningPlacements(instances []*types.Instance) []runningPlacement {
	out := make([]runningPlacement, 0, len(instances))
	for _, inst := range instances {
		if inst.IsTerminal() {
			continue
		}
		attrs := make(map[string]string, len(inst.Agent.Attributes)+1)
		for k, v := range inst.Agent.Attributes {
			attrs[k] = v
		}
		attrs["hostname"] = inst.Agent.Host
		out = append(out, runningPlacement{Attributes: attrs})
	}
	return out
}
