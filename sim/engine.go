package sim

// TimeTeller reports the virtual time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// EventScheduler accepts events for later dispatch.
type EventScheduler interface {
	Schedule(e Event)
}

// SimulationEndHandler is told when the owner declares the run over, so it
// can close open tasks and flush what it buffered.
type SimulationEndHandler interface {
	Handle(now VTimeInSec)
}

// SimulationEndFunc adapts a function to SimulationEndHandler.
type SimulationEndFunc func(now VTimeInSec)

// Handle calls f.
func (f SimulationEndFunc) Handle(now VTimeInSec) {
	f(now)
}

// Engine dispatches the events of the protection domains and the simulated
// hardware in time order.
type Engine interface {
	Hookable
	TimeTeller
	EventScheduler

	// Run dispatches events until the queue drains. Events scheduled by
	// handlers, including doorbells, are dispatched in the same call.
	Run() error

	// Pause blocks dispatch until Continue. Both are safe to call from
	// other goroutines.
	Pause()
	Continue()

	// RegisterSimulationEndHandler adds a handler to be called by Finished.
	RegisterSimulationEndHandler(handler SimulationEndHandler)

	// Finished calls the end handlers once with the current time.
	Finished()
}
