package broker

import (
	"fmt"
	"log"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/transport"
)

// ClientConfig binds a client identity to its channel and transport.
type ClientConfig struct {
	ID        i2c.ClientID
	Channel   microkit.Channel
	Transport *transport.Context
}

// Builder builds brokers.
type Builder struct {
	driverCh microkit.Channel
	driver   *transport.Context
	clients  []ClientConfig
	logger   *log.Logger
}

// MakeBuilder returns a Builder that expects the driver on channel 0.
func MakeBuilder() Builder {
	return Builder{
		logger: log.Default(),
	}
}

// WithDriver sets the channel and the broker's end of the driver transport.
func (b Builder) WithDriver(ch microkit.Channel, t *transport.Context) Builder {
	b.driverCh = ch
	b.driver = t
	return b
}

// WithClient adds a client.
func (b Builder) WithClient(c ClientConfig) Builder {
	b.clients = append(append([]ClientConfig(nil), b.clients...), c)
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a broker. It panics if two clients share an id or a
// channel, or if a client uses the driver channel.
func (b Builder) Build(name string) *Comp {
	sim.NameMustBeValid(name)

	if b.driver == nil {
		panic("driver transport is not set")
	}

	c := &Comp{
		name:      name,
		logger:    b.logger,
		security:  NewSecurity(),
		driverCh:  b.driverCh,
		driver:    b.driver,
		byChannel: make(map[microkit.Channel]*client),
		byID:      make(map[i2c.ClientID]*client),
	}

	for _, cc := range b.clients {
		b.clientMustBeUnique(c, cc)

		cl := &client{
			id:        cc.ID,
			channel:   cc.Channel,
			transport: cc.Transport,
		}
		c.clients = append(c.clients, cl)
		c.byChannel[cc.Channel] = cl
		c.byID[cc.ID] = cl
	}

	return c
}

func (b Builder) clientMustBeUnique(c *Comp, cc ClientConfig) {
	if cc.Transport == nil {
		panic(fmt.Sprintf("client %d has no transport", cc.ID))
	}

	if cc.Channel == b.driverCh {
		panic(fmt.Sprintf("client %d uses the driver channel", cc.ID))
	}

	if _, ok := c.byChannel[cc.Channel]; ok {
		panic(fmt.Sprintf("channel %d is used twice", cc.Channel))
	}

	if _, ok := c.byID[cc.ID]; ok {
		panic(fmt.Sprintf("client id %d is used twice", cc.ID))
	}
}

// Ensure Comp accepts protected calls.
var _ microkit.ProtectedPD = (*Comp)(nil)
