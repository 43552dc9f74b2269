package sim

import "log"

// LogHookBase holds the logger of a logging hook.
type LogHookBase struct {
	*log.Logger
}

// EventLogger logs every event just before it is dispatched, as
// "<time>, <event type> -> <handler>".
type EventLogger struct {
	LogHookBase
}

// NewEventLogger returns an EventLogger writing to logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{LogHookBase{Logger: logger}}
}

// Func logs events at HookPosBeforeEvent and ignores everything else.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	target := "?"
	if named, ok := evt.Handler().(Named); ok {
		target = named.Name()
	}

	h.Printf("%.10f, %T -> %s", evt.Time(), evt, target)
}
