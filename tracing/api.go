// Package tracing records the tasks that components work on.
//
// Components report the start, the steps and the end of their tasks through
// hooks. Tracers attached with CollectTrace turn these reports into
// statistics or database rows.
package tracing

import (
	"log"

	"github.com/sarchlab/i2cmux/sim"
)

// NamedHookable is a component that can report tasks.
type NamedHookable interface {
	sim.Named
	sim.Hookable
	InvokeHook(sim.HookCtx)
}

// Positions at which task reports are delivered.
var (
	HookPosTaskStart = &sim.HookPos{Name: "TaskStart"}
	HookPosTaskStep  = &sim.HookPos{Name: "TaskStep"}
	HookPosTaskEnd   = &sim.HookPos{Name: "TaskEnd"}
)

// StartTask opens a task on domain. Untraced domains pay nothing. Empty
// id, kind or what is a programming error and panics.
func StartTask(
	id, parentID string,
	domain NamedHookable,
	kind, what string,
	detail any,
) {
	if domain.NumHooks() == 0 {
		return
	}

	switch {
	case id == "":
		log.Panic("task id must not be empty")
	case kind == "":
		log.Panicf("task %s has no kind", id)
	case what == "":
		log.Panicf("task %s has no what", id)
	case domain.Name() == "":
		log.Panicf("task %s runs on an unnamed domain", id)
	}

	emit(domain, HookPosTaskStart, Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Where:    domain.Name(),
		Detail:   detail,
	})
}

// AddTaskStep records a milestone such as "nack" on an open task.
func AddTaskStep(id string, domain NamedHookable, what string) {
	if domain.NumHooks() == 0 {
		return
	}

	emit(domain, HookPosTaskStep, Task{
		ID:    id,
		Steps: []TaskStep{{What: what}},
	})
}

// EndTask closes a task.
func EndTask(id string, domain NamedHookable) {
	if domain.NumHooks() == 0 {
		return
	}

	emit(domain, HookPosTaskEnd, Task{ID: id})
}

func emit(domain NamedHookable, pos *sim.HookPos, task Task) {
	domain.InvokeHook(sim.HookCtx{Domain: domain, Pos: pos, Item: task})
}
