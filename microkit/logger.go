package microkit

import (
	"log"

	"github.com/sarchlab/i2cmux/sim"
)

// SignalLogger is a hook that logs kernel operations of a System.
type SignalLogger struct {
	sim.LogHookBase

	timeTeller sim.TimeTeller
}

// NewSignalLogger creates a SignalLogger that writes into logger.
func NewSignalLogger(logger *log.Logger, timeTeller sim.TimeTeller) *SignalLogger {
	h := &SignalLogger{timeTeller: timeTeller}
	h.Logger = logger

	return h
}

// Func logs the signal.
func (h *SignalLogger) Func(ctx sim.HookCtx) {
	s, ok := ctx.Item.(Signal)
	if !ok {
		return
	}

	now := h.timeTeller.CurrentTime()

	switch ctx.Pos {
	case HookPosNotify:
		h.Printf("%.10f, notify %s -> %s ch %d", now, s.From, s.To, s.Channel)
	case HookPosDeliver:
		h.Printf("%.10f, deliver %s ch %d", now, s.To, s.Channel)
	case HookPosIRQ:
		h.Printf("%.10f, irq %s -> %s ch %d", now, s.From, s.To, s.Channel)
	case HookPosPPCall:
		h.Printf("%.10f, ppcall %s -> %s ch %d", now, s.From, s.To, s.Channel)
	}
}
