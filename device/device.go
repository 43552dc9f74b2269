// Package device provides simulated I2C targets that can be attached to a
// simulated controller.
package device

import (
	"fmt"
	"sort"

	"github.com/sarchlab/i2cmux/i2c"
)

// A Target is a device that answers on one bus address.
type Target interface {
	Name() string
	Addr() i2c.Addr

	// Address selects the target after a start condition. It returns false
	// if the target does not acknowledge.
	Address(read bool) bool

	// WriteByte receives one byte and returns whether it was acknowledged.
	WriteByte(b byte) bool

	// ReadByte sends one byte to the controller.
	ReadByte() byte

	// Stop ends the transaction.
	Stop()

	// Holding returns true while the target stretches the clock.
	Holding() bool
}

// Bus is the set of targets attached to one controller.
type Bus struct {
	targets map[i2c.Addr]Target
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{targets: make(map[i2c.Addr]Target)}
}

// Attach connects a target. Two targets cannot share an address.
func (b *Bus) Attach(t Target) {
	if !t.Addr().Valid() {
		panic(fmt.Sprintf("target %s: address %s out of range", t.Name(), t.Addr()))
	}

	if other, found := b.targets[t.Addr()]; found {
		panic(fmt.Sprintf("target %s: address %s already used by %s",
			t.Name(), t.Addr(), other.Name()))
	}

	b.targets[t.Addr()] = t
}

// Detach removes the target at addr, if any.
func (b *Bus) Detach(addr i2c.Addr) {
	delete(b.targets, addr)
}

// Lookup returns the target at addr.
func (b *Bus) Lookup(addr i2c.Addr) (Target, bool) {
	t, found := b.targets[addr]
	return t, found
}

// Targets returns the attached targets ordered by address.
func (b *Bus) Targets() []Target {
	list := make([]Target, 0, len(b.targets))
	for _, t := range b.targets {
		list = append(list, t)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Addr() < list[j].Addr()
	})

	return list
}

type targetBase struct {
	name string
	addr i2c.Addr
}

func (t *targetBase) Name() string {
	return t.name
}

func (t *targetBase) Addr() i2c.Addr {
	return t.addr
}

func (t *targetBase) Holding() bool {
	return false
}
