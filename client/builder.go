package client

import (
	"log"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/transport"
)

// Builder builds clients.
type Builder struct {
	id        i2c.ClientID
	brokerCh  microkit.Channel
	transport *transport.Context
	logger    *log.Logger
}

// MakeBuilder returns a Builder for a client that reaches the broker on
// channel 0.
func MakeBuilder() Builder {
	return Builder{
		logger: log.Default(),
	}
}

// WithID sets the identity the broker assigned to the client.
func (b Builder) WithID(id i2c.ClientID) Builder {
	b.id = id
	return b
}

// WithBroker sets the channel to the broker and the client's end of the
// transport.
func (b Builder) WithBroker(ch microkit.Channel, t *transport.Context) Builder {
	b.brokerCh = ch
	b.transport = t
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a client.
func (b Builder) Build(name string) *Comp {
	sim.NameMustBeValid(name)

	if b.transport == nil {
		panic("transport is not set")
	}

	return &Comp{
		name:      name,
		id:        b.id,
		brokerCh:  b.brokerCh,
		transport: b.transport,
		logger:    b.logger,
		pending:   make(map[i2c.Addr][]*pending),
	}
}

// Ensure Comp is a PD.
var _ microkit.PD = (*Comp)(nil)
