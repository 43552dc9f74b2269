package sim

import (
	"fmt"
	"log"
	"sync"
)

// SerialEngine dispatches one event at a time. Secondary events at a given
// time run after every primary event at that time.
type SerialEngine struct {
	HookableBase

	primary   EventQueue
	secondary EventQueue
	running   sync.Mutex

	mu      sync.Mutex
	resumed *sync.Cond
	now     VTimeInSec
	paused  bool

	endHandlers []SimulationEndHandler
}

// NewSerialEngine returns an engine at time 0 with nothing scheduled.
func NewSerialEngine() *SerialEngine {
	e := &SerialEngine{
		primary:   NewEventQueue(),
		secondary: NewEventQueue(),
	}
	e.resumed = sync.NewCond(&e.mu)

	return e
}

// Schedule queues evt. Scheduling into the past panics.
func (e *SerialEngine) Schedule(evt Event) {
	if now := e.CurrentTime(); evt.Time() < now {
		log.Panicf("scheduling %T at %.10f, earlier than now %.10f",
			evt, evt.Time(), now)
	}

	if evt.IsSecondary() {
		e.secondary.Push(evt)
	} else {
		e.primary.Push(evt)
	}
}

// CurrentTime is the time of the event being dispatched, or of the last one.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.now
}

// Run dispatches events until both queues are empty. It returns the first
// handler error, leaving the remaining events queued.
func (e *SerialEngine) Run() error {
	e.running.Lock()
	defer e.running.Unlock()

	for {
		evt := e.next()
		if evt == nil {
			return nil
		}

		if err := e.dispatch(evt); err != nil {
			return err
		}
	}
}

// next waits out a pause, then advances the clock to the earliest event.
func (e *SerialEngine) next() Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.paused {
		e.resumed.Wait()
	}

	var evt Event
	switch {
	case e.primary.Len() == 0 && e.secondary.Len() == 0:
		return nil
	case e.secondary.Len() == 0:
		evt = e.primary.Pop()
	case e.primary.Len() == 0:
		evt = e.secondary.Pop()
	case e.primary.Peek().Time() <= e.secondary.Peek().Time():
		evt = e.primary.Pop()
	default:
		evt = e.secondary.Pop()
	}

	if evt.Time() < e.now {
		log.Panicf("event %T at %.10f is behind now %.10f",
			evt, evt.Time(), e.now)
	}
	e.now = evt.Time()

	return evt
}

func (e *SerialEngine) dispatch(evt Event) error {
	ctx := HookCtx{Domain: e, Pos: HookPosBeforeEvent, Item: evt}
	e.InvokeHook(ctx)

	err := evt.Handler().Handle(evt)

	ctx.Pos = HookPosAfterEvent
	e.InvokeHook(ctx)

	if err != nil {
		return fmt.Errorf("handling %T at %.10f: %w", evt, evt.Time(), err)
	}

	return nil
}

// Pause holds dispatch after the current event. It may be called from any
// goroutine.
func (e *SerialEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Continue releases a Pause.
func (e *SerialEngine) Continue() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()

	e.resumed.Broadcast()
}

// RegisterSimulationEndHandler adds a handler for Finished.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.endHandlers = append(e.endHandlers, handler)
}

// Finished calls the registered end handlers. Calls after the first are
// no-ops.
func (e *SerialEngine) Finished() {
	handlers := e.endHandlers
	e.endHandlers = nil

	now := e.CurrentTime()
	for _, h := range handlers {
		h.Handle(now)
	}
}
