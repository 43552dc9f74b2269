package meson

import (
	"log"

	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/transport"
)

// Builder builds driver components.
type Builder struct {
	regs      mmio.Bank
	transport *transport.Context
	channels  Channels
	logger    *log.Logger
}

// MakeBuilder returns a Builder with the default channel assignment of the
// driver PD.
func MakeBuilder() Builder {
	return Builder{
		channels: Channels{
			Broker:  0,
			IRQ:     1,
			Timeout: 2,
		},
		logger: log.Default(),
	}
}

// WithRegisters sets the controller register bank.
func (b Builder) WithRegisters(regs mmio.Bank) Builder {
	b.regs = regs
	return b
}

// WithTransport sets the driver's end of the transport shared with the
// broker.
func (b Builder) WithTransport(t *transport.Context) Builder {
	b.transport = t
	return b
}

// WithChannels sets the channels of the broker doorbell and the two
// interrupts.
func (b Builder) WithChannels(ch Channels) Builder {
	b.channels = ch
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a driver. The driver must be bound to a kernel before it
// receives notifications.
func (b Builder) Build(name string) *Comp {
	sim.NameMustBeValid(name)

	if b.regs == nil {
		panic("register bank is not set")
	}

	if b.transport == nil {
		panic("transport is not set")
	}

	c := &Comp{
		name:      name,
		regs:      b.regs,
		transport: b.transport,
		channels:  b.channels,
		logger:    b.logger,
	}

	return c
}

// Ensure Comp is a PD.
var _ microkit.PD = (*Comp)(nil)
