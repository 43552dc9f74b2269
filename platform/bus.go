package platform

import (
	"errors"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/sarchlab/i2cmux/client"
)

// Bus returns a periph.io bus that talks through the named client. The
// client's results are then consumed by the bus.
func (p *Platform) Bus(name string) (*client.Bus, bool) {
	c, ok := p.clientByName[name]
	if !ok {
		return nil, false
	}

	return client.NewBus(c, p.engine), true
}

// RegisterBuses registers one bus per client with i2creg, so that periph.io
// drivers can open them by name. The returned function unregisters them.
func (p *Platform) RegisterBuses() (func() error, error) {
	var names []string

	unregister := func() error {
		var errs []error
		for _, n := range names {
			errs = append(errs, i2creg.Unregister(n))
		}

		return errors.Join(errs...)
	}

	for _, c := range p.clients {
		bus := client.NewBus(c, p.engine)
		name := bus.String()

		opener := func() (i2c.BusCloser, error) {
			return bus, nil
		}

		if err := i2creg.Register(name, nil, -1, opener); err != nil {
			return nil, errors.Join(err, unregister())
		}

		names = append(names, name)
	}

	return unregister, nil
}
