package matcher

import (
	"regexp"
	"strconv"

	"github.com/steward-sh/steward/pkg/types"
)

// evaluateConstraints checks every declared placement constraint against
// the offer's attributes and the run-spec's already-running instances
// (spec.md section 4.1 step 4).
func evaluateConstraints(constraints []types.Constraint, offer Offer, running []runningPlacement) (bool, []string) {
	var reasons []string
	for _, c := range constraints {
		ok, reason := evaluateOne(c, offer, running)
		if !ok {
			reasons = append(reasons, reason)
		}
	}
	return len(reasons) == 0, reasons
}

// runningPlacement is the subset of an already-running instance's state
// the constraint evaluator needs: its host attribute values.
type runningPlacement struct {
	Attributes map[string]string
}

func attrValue(field string, offer Offer) (string, bool) {
	if field == "hostname" {
		return offer.Host, true
	}
	v, ok := offer.Attributes[field]
	return v, ok
}

func evaluateOne(c types.Constraint, offer Offer, running []runningPlacement) (bool, string) {
	value, present := attrValue(c.Field, offer)

	switch c.Operator {
	case types.ConstraintUnique:
		if !present {
			return false, "constraint UNIQUE(" + c.Field + "): offer lacks attribute"
		}
		for _, r := range running {
			if r.Attributes[c.Field] == value {
				return false, "constraint UNIQUE(" + c.Field + "): value already in use"
			}
		}
		return true, ""

	case types.ConstraintCluster:
		if !present {
			return false, "constraint CLUSTER(" + c.Field + "): offer lacks attribute"
		}
		if c.Value != "" {
			if value != c.Value {
				return false, "constraint CLUSTER(" + c.Field + "): value mismatch"
			}
			return true, ""
		}
		// empty value: all running instances must share the same value.
		for _, r := range running {
			if v, ok := r.Attributes[c.Field]; ok && v != value {
				return false, "constraint CLUSTER(" + c.Field + "): running instances disagree on value"
			}
		}
		return true, ""

	case types.ConstraintGroupBy:
		if !present {
			return false, "constraint GROUP_BY(" + c.Field + "): offer lacks attribute"
		}
		n, err := strconv.Atoi(c.Value)
		if err != nil || n <= 0 {
			n = 1
		}
		counts := make(map[string]int)
		for _, r := range running {
			counts[r.Attributes[c.Field]]++
		}
		min := -1
		for _, v := range counts {
			if min == -1 || v < min {
				min = v
			}
		}
		if min == -1 {
			return true, "" // no running instances yet, any value balances
		}
		if len(counts) < n {
			// haven't yet spread across all n buckets: only accept a
			// currently-unused value.
			if _, seen := counts[value]; seen {
				return false, "constraint GROUP_BY(" + c.Field + "): value already represented before spreading to " + c.Value + " groups"
			}
			return true, ""
		}
		if counts[value] > min {
			return false, "constraint GROUP_BY(" + c.Field + "): value already over-represented"
		}
		return true, ""

	case types.ConstraintLike:
		if !present {
			return false, "constraint LIKE(" + c.Field + "): offer lacks attribute"
		}
		re, err := regexp.Compile(c.Value)
		if err != nil || !re.MatchString(value) {
			return false, "constraint LIKE(" + c.Field + "): value does not match " + c.Value
		}
		return true, ""

	case types.ConstraintUnlike:
		if !present {
			return true, ""
		}
		re, err := regexp.Compile(c.Value)
		if err == nil && re.MatchString(value) {
			return false, "constraint UNLIKE(" + c.Field + "): value matches " + c.Value
		}
		return true, ""

	case types.ConstraintMaxPer:
		if !present {
			return false, "constraint MAX_PER(" + c.Field + "): offer lacks attribute"
		}
		n, err := strconv.Atoi(c.Value)
		if err != nil {
			return false, "constraint MAX_PER(" + c.Field + "): invalid value " + c.Value
		}
		count := 0
		for _, r := range running {
			if r.Attributes[c.Field] == value {
				count++
			}
		}
		if count >= n {
			return false, "constraint MAX_PER(" + c.Field + "): limit reached"
		}
		return true, ""

	default:
		return false, "unknown constraint operator " + string(c.Operator)
	}
}
