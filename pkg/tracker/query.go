package tracker

import (
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

// query bundles a read-only snapshot request, routed through the same
// command loop as mutations so reads never race a concurrent apply.
type query struct {
	fn    func() any
	reply chan any
}

// instancesBySpec returns every run-spec path currently tracked, each
// mapped to its instance ids (spec.md section 4.2 "instancesBySpec()").
func (t *Tracker) InstancesBySpec() map[pathid.Path][]string {
	return t.ask(func() any {
		out := make(map[pathid.Path][]string, len(t.bySpec))
		for path, ids := range t.bySpec {
			for id := range ids {
				out[path] = append(out[path], id)
			}
		}
		return out
	}).(map[pathid.Path][]string)
}

// SpecInstances returns every instance currently tracked for path
// (spec.md section 4.2 "specInstances(id)").
func (t *Tracker) SpecInstances(path pathid.Path) []*types.Instance {
	return t.ask(func() any {
		ids := t.bySpec[path]
		out := make([]*types.Instance, 0, len(ids))
		for id := range ids {
			out = append(out, t.instances[id].Clone())
		}
		return out
	}).([]*types.Instance)
}

// Instance returns a single instance by id, or nil if untracked
// (spec.md section 4.2 "instance(id)").
func (t *Tracker) Instance(id string) *types.Instance {
	return t.ask(func() any {
		if inst, ok := t.instances[id]; ok {
			return inst.Clone()
		}
		return (*types.Instance)(nil)
	}).(*types.Instance)
}

// LaunchedTasks returns every non-Reserved task belonging to path's
// instances (spec.md section 4.2 "launchedTasks(id)").
func (t *Tracker) LaunchedTasks(path pathid.Path) []*types.Task {
	return t.ask(func() any {
		var out []*types.Task
		for id := range t.bySpec[path] {
			for _, task := range t.instances[id].Tasks {
				if task.Variant != types.TaskReserved {
					tc := *task
					out = append(out, &tc)
				}
			}
		}
		return out
	}).([]*types.Task)
}

// ask routes a read through the command loop via a dedicated channel so
// reads observe a consistent snapshot relative to in-flight mutations,
// without forcing every read through the UpdateOp/Effect contract.
func (t *Tracker) ask(fn func() any) any {
	q := query{fn: fn, reply: make(chan any, 1)}
	select {
	case t.queryCh <- q:
	case <-t.done:
		return fn()
	}
	return <-q.reply
}
