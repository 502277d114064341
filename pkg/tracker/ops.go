package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/types"
)

func (t *Tracker) applyLaunchEphemeral(o LaunchEphemeral) Effect {
	inst := types.NewInstance(uuid.NewString(), o.RunSpecPath, time.Unix(0, o.Version), o.Agent, types.DefaultUnreachableStrategy(), time.Now())
	task := &types.Task{
		ID:         o.TaskID,
		InstanceID: inst.ID,
		Variant:    types.TaskLaunchedEphemeral,
		Status:     types.TaskStatus{StagedAt: time.Now(), Condition: types.ConditionStaging},
	}
	inst.Tasks[task.ID] = task
	inst.State = types.InstanceState{Condition: types.ConditionStaging, Since: time.Now()}

	if err := t.persist(inst); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	t.index(inst)
	return Effect{
		Kind: EffectUpdate,
		New:  inst.Clone(),
		Events: []*events.Event{{
			Type:    events.TypeInstanceChanged,
			Payload: events.InstanceChangedPayload{InstanceID: inst.ID, RunSpec: inst.RunSpecPath, Condition: string(inst.State.Condition)},
		}},
	}
}

func (t *Tracker) applyReserve(o Reserve) Effect {
	inst := types.NewInstance(uuid.NewString(), o.RunSpecPath, time.Unix(0, o.Version), o.Agent, types.DefaultUnreachableStrategy(), time.Now())
	task := &types.Task{
		ID:          o.TaskID,
		InstanceID:  inst.ID,
		Variant:     types.TaskReserved,
		Status:      types.TaskStatus{StagedAt: time.Now(), Condition: types.ConditionReserved},
		Reservation: &o.Reservation,
	}
	inst.Tasks[task.ID] = task
	inst.State = types.InstanceState{Condition: types.ConditionReserved, Since: time.Now()}

	if err := t.persist(inst); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	t.index(inst)
	return Effect{
		Kind: EffectUpdate,
		New:  inst.Clone(),
		Events: []*events.Event{{
			Type:    events.TypeInstanceChanged,
			Payload: events.InstanceChangedPayload{InstanceID: inst.ID, RunSpec: inst.RunSpecPath, Condition: string(inst.State.Condition)},
		}},
	}
}

func (t *Tracker) applyLaunchOnReservation(o LaunchOnReservation) Effect {
	inst, ok := t.instances[o.InstanceID]
	if !ok {
		return Effect{Kind: EffectFailure, Reason: "instance not found: " + o.InstanceID}
	}
	var reservedTask *types.Task
	for _, task := range inst.Tasks {
		if task.Variant == types.TaskReserved {
			reservedTask = task
			break
		}
	}
	if reservedTask == nil {
		return Effect{Kind: EffectFailure, Reason: "instance " + o.InstanceID + " has no reserved task to launch on"}
	}
	old := inst.Clone()

	newTask := &types.Task{
		ID:                  o.TaskID,
		InstanceID:          inst.ID,
		Variant:             types.TaskLaunchedOnReservation,
		Status:              types.TaskStatus{StagedAt: time.Now(), Condition: types.ConditionStaging},
		Reservation:         reservedTask.Reservation,
		PersistentVolumeIDs: reservedTask.PersistentVolumeIDs,
	}
	delete(inst.Tasks, reservedTask.ID)
	inst.Tasks[newTask.ID] = newTask
	inst.State = types.InstanceState{Condition: types.ConditionStaging, Since: time.Now()}

	if err := t.persist(inst); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	delete(t.byTask, reservedTask.ID)
	t.byTask[newTask.ID] = inst.ID
	return Effect{
		Kind: EffectUpdate,
		Old:  old,
		New:  inst.Clone(),
		Events: []*events.Event{{
			Type:    events.TypeInstanceChanged,
			Payload: events.InstanceChangedPayload{InstanceID: inst.ID, RunSpec: inst.RunSpecPath, Condition: string(inst.State.Condition)},
		}},
	}
}

// applyMesosUpdate applies an external status report. A Reserved task never
// transitions via external status update: spec.md section 4.2 invariant
// (iv) and "Contract" make this a protocol-class Failure, not a silent
// no-op, since it signals a collaborator bug worth surfacing.
func (t *Tracker) applyMesosUpdate(o MesosUpdate) Effect {
	instID, ok := t.byTask[o.TaskID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	inst := t.instances[instID]
	task := inst.Tasks[o.TaskID]
	if task == nil {
		return Effect{Kind: EffectNoop}
	}
	if task.Variant == types.TaskReserved {
		return Effect{Kind: EffectFailure, Reason: "protocol violation: MesosUpdate against a Reserved task " + o.TaskID}
	}

	newCondition, known := types.ConditionForReason(o.Reason)
	if !known {
		newCondition = o.Condition
	}
	if task.Status.Condition == newCondition {
		return Effect{Kind: EffectNoop}
	}

	old := inst.Clone()
	task.Status.Condition = newCondition
	task.Status.LastReason = o.Reason
	now := time.Unix(0, o.Now)
	if newCondition == types.ConditionStarting && task.Status.StartedAt == nil {
		task.Status.StartedAt = &now
	}

	inst.State = types.InstanceState{Condition: newCondition, Since: now}
	if newCondition.IsActive() {
		inst.State.ActiveAt = &now
	} else {
		inst.State.ActiveAt = old.State.ActiveAt
	}
	inst.State.Healthy = old.State.Healthy

	evts := []*events.Event{{
		Type:    events.TypeInstanceChanged,
		Payload: events.InstanceChangedPayload{InstanceID: inst.ID, RunSpec: inst.RunSpecPath, Condition: string(newCondition)},
	}, {
		Type:    events.TypeStatusUpdate,
		Payload: events.StatusUpdatePayload{TaskID: o.TaskID, InstanceID: inst.ID, Reason: string(o.Reason)},
	}}

	if newCondition.IsTerminal() {
		t.unindex(inst)
		if err := t.repo.DeleteInstance(string(inst.RunSpecPath), inst.ID); err != nil {
			return Effect{Kind: EffectFailure, Reason: err.Error()}
		}
		return Effect{Kind: EffectExpunge, Old: old, Events: evts}
	}

	if err := t.persist(inst); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	return Effect{Kind: EffectUpdate, Old: old, New: inst.Clone(), Events: evts}
}

func (t *Tracker) applyReservationTimeout(o ReservationTimeout) Effect {
	inst, ok := t.instances[o.InstanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	old := inst.Clone()
	t.unindex(inst)
	if err := t.repo.DeleteInstance(string(inst.RunSpecPath), inst.ID); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	return Effect{
		Kind: EffectExpunge,
		Old:  old,
		Events: []*events.Event{{
			Type:    events.TypeInstanceChanged,
			Payload: events.InstanceChangedPayload{InstanceID: o.InstanceID, RunSpec: old.RunSpecPath, Condition: string(types.ConditionGone)},
		}},
	}
}

// applyMarkUnreachableInactive advances an Unreachable instance to
// UnreachableInactive. A no-op if the instance has already moved on (e.g.
// re-observed as Running, or already expunged).
func (t *Tracker) applyMarkUnreachableInactive(o MarkUnreachableInactive) Effect {
	inst, ok := t.instances[o.InstanceID]
	if !ok || inst.State.Condition != types.ConditionUnreachable {
		return Effect{Kind: EffectNoop}
	}
	old := inst.Clone()
	inst.State.Condition = types.ConditionUnreachableInactive
	inst.State.Since = time.Unix(0, o.Now)

	if err := t.persist(inst); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	return Effect{
		Kind: EffectUpdate,
		Old:  old,
		New:  inst.Clone(),
		Events: []*events.Event{{
			Type:    events.TypeInstanceChanged,
			Payload: events.InstanceChangedPayload{InstanceID: inst.ID, RunSpec: inst.RunSpecPath, Condition: string(inst.State.Condition)},
		}},
	}
}

func (t *Tracker) applyForceExpunge(o ForceExpunge) Effect {
	inst, ok := t.instances[o.InstanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	old := inst.Clone()
	t.unindex(inst)
	if err := t.repo.DeleteInstance(string(inst.RunSpecPath), inst.ID); err != nil {
		return Effect{Kind: EffectFailure, Reason: err.Error()}
	}
	return Effect{
		Kind: EffectExpunge,
		Old:  old,
		Events: []*events.Event{{
			Type:    events.TypeInstanceChanged,
			Payload: events.InstanceChangedPayload{InstanceID: o.InstanceID, RunSpec: old.RunSpecPath, Condition: string(types.ConditionGone)},
		}},
	}
}
