package client

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	i2cmux "github.com/sarchlab/i2cmux/i2c"
)

// Speed is the fixed SCL frequency of the bus.
const Speed = 400 * physic.KiloHertz

// ErrNoResult is returned when the environment stops before a transaction
// gets its result.
var ErrNoResult = errors.New("no result")

// Runner drives the environment the client lives in until it has nothing
// left to do.
type Runner interface {
	Run() error
}

// Bus lets periph.io device drivers talk through a client. Every Tx is run
// to completion before it returns. The client must not have a result
// handler, because Bus collects results with PopResult.
type Bus struct {
	client *Comp
	runner Runner
}

// NewBus wraps a client.
func NewBus(c *Comp, r Runner) *Bus {
	if c.onResult != nil {
		panic("client already has a result handler")
	}

	return &Bus{client: c, runner: r}
}

func (b *Bus) String() string {
	return "i2cmux/" + b.client.Name()
}

// Tx writes w and then reads len(r) bytes from the target at addr.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > uint16(i2cmux.MaxAddr) {
		return fmt.Errorf("%w: 0x%x", i2cmux.ErrInvalidAddress, addr)
	}

	a := i2cmux.Addr(addr)

	var err error
	switch {
	case len(w) > 0 && len(r) > 0:
		err = b.client.WriteRead(a, w, len(r))
	case len(w) > 0:
		err = b.client.Write(a, w)
	case len(r) > 0:
		err = b.client.Read(a, len(r))
	default:
		return nil
	}

	if err != nil {
		return err
	}

	res, err := b.wait()
	if err != nil {
		return err
	}

	if res.Err != nil {
		return res.Err
	}

	if len(res.Data) != len(r) {
		return fmt.Errorf("read %d bytes from %s, want %d", len(res.Data), a, len(r))
	}
	copy(r, res.Data)

	return nil
}

func (b *Bus) wait() (Result, error) {
	for {
		if res, ok := b.client.PopResult(); ok {
			return res, nil
		}

		if b.client.Outstanding() == 0 {
			return Result{}, ErrNoResult
		}

		before := b.client.Stats().Received
		if err := b.runner.Run(); err != nil {
			return Result{}, err
		}

		if b.client.Stats().Received == before {
			b.client.Expire()
			return Result{}, ErrNoResult
		}
	}
}

// SetSpeed accepts only the fixed bus speed.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f != Speed {
		return fmt.Errorf("bus speed is fixed at %s", Speed)
	}

	return nil
}

// Close does nothing. The client stays usable.
func (b *Bus) Close() error {
	return nil
}

var _ i2c.BusCloser = (*Bus)(nil)
