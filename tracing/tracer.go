package tracing

import "github.com/sarchlab/i2cmux/sim"

// Tracer consumes task reports.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// CollectTrace routes the task reports of domain to tracer.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	domain.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		task, ok := ctx.Item.(Task)
		if !ok {
			return
		}

		switch ctx.Pos {
		case HookPosTaskStart:
			tracer.StartTask(task)
		case HookPosTaskStep:
			tracer.StepTask(task)
		case HookPosTaskEnd:
			tracer.EndTask(task)
		}
	}))
}
