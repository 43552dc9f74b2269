package mesonsim

import (
	"github.com/sarchlab/i2cmux/device"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/sim"
)

// Builder builds Controllers.
type Builder struct {
	engine  sim.Engine
	bus     *device.Bus
	freq    sim.Freq
	timeout sim.VTimeInSec
}

// MakeBuilder returns a Builder for a 400 kHz controller with a 10 ms bus
// timeout.
func MakeBuilder() Builder {
	return Builder{
		freq:    400 * sim.KHz,
		timeout: 10e-3,
	}
}

// WithEngine sets the engine that schedules bus completion.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithBus sets the targets attached to the controller.
func (b Builder) WithBus(bus *device.Bus) Builder {
	b.bus = bus
	return b
}

// WithFreq sets the SCL frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithTimeout sets the time after which a stretched clock raises the timeout
// interrupt.
func (b Builder) WithTimeout(timeout sim.VTimeInSec) Builder {
	b.timeout = timeout
	return b
}

// Build creates a Controller.
func (b Builder) Build(name string) *Controller {
	if b.engine == nil {
		panic("engine is not set")
	}

	if b.bus == nil {
		b.bus = device.NewBus()
	}

	return &Controller{
		ComponentBase: sim.NewComponentBase(name),
		engine:        b.engine,
		bus:           b.bus,
		freq:          b.freq,
		timeout:       b.timeout,
		regs:          make(map[mmio.Reg]uint32),
	}
}
