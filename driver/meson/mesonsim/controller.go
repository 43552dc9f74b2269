// Package mesonsim models the Meson I2C master at register level so that the
// driver can run against simulated bus targets.
package mesonsim

import (
	"fmt"
	"log"
	"reflect"

	"github.com/sarchlab/i2cmux/device"
	"github.com/sarchlab/i2cmux/driver/meson"
	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/sim"
)

// HookPosTransfer is triggered when the controller finishes executing a token
// list. The item is a Transfer.
var HookPosTransfer = &sim.HookPos{Name: "Transfer"}

// IRQ is an interrupt line the controller can raise.
type IRQ interface {
	Raise()
}

// Transfer summarizes one execution of the token list.
type Transfer struct {
	Addr     i2c.Addr
	Slots    int
	Written  int
	Read     int
	Failed   bool
	ErrSlot  int
	Hung     bool
	Duration sim.VTimeInSec
}

// Stats counts the controller activity.
type Stats struct {
	Lists    uint64
	Written  uint64
	Read     uint64
	Nacks    uint64
	Hangs    uint64
	Canceled uint64
}

type completeEvent struct {
	*sim.EventBase
	gen uint64
}

type timeoutEvent struct {
	*sim.EventBase
	gen uint64
}

// Controller is a simulated Meson I2C master. It implements mmio.Bank.
type Controller struct {
	*sim.ComponentBase

	engine  sim.Engine
	bus     *device.Bus
	freq    sim.Freq
	timeout sim.VTimeInSec
	done    IRQ
	hung    IRQ

	regs map[mmio.Reg]uint32
	gen  uint64

	target  device.Target
	reading bool

	result  Transfer
	rdata   [2]uint32
	pending bool
	stats   Stats
}

// Bus returns the bus the targets are attached to.
func (c *Controller) Bus() *device.Bus {
	return c.bus
}

// Stats returns the activity counters.
func (c *Controller) Stats() Stats {
	return c.stats
}

// Busy returns true while a token list is executing.
func (c *Controller) Busy() bool {
	return c.pending
}

// ConnectIRQs sets the completion and timeout interrupt lines.
func (c *Controller) ConnectIRQs(done, timeout IRQ) {
	c.done = done
	c.hung = timeout
}

// Load implements mmio.Bank.
func (c *Controller) Load(r mmio.Reg) uint32 {
	c.mustBeMapped(r)
	return c.regs[r]
}

// Store implements mmio.Bank. Status, error, current token and read count
// bits of the control register, and the read data registers, are read-only.
func (c *Controller) Store(r mmio.Reg, v uint32) {
	c.mustBeMapped(r)

	switch r {
	case meson.RegRData0, meson.RegRData1:
		return
	case meson.RegCtl:
		c.storeCtl(v)
	default:
		c.regs[r] = v
	}
}

func (c *Controller) mustBeMapped(r mmio.Reg) {
	if _, ok := meson.RegisterMap[r]; !ok {
		panic(fmt.Sprintf("%s: no register at offset 0x%02x", c.Name(), uint32(r)))
	}
}

const hwBits = meson.CtlStatus | meson.CtlError |
	meson.CtlCurrTokenMask | meson.CtlRdCountMask

func (c *Controller) storeCtl(v uint32) {
	old := c.regs[meson.RegCtl]
	c.regs[meson.RegCtl] = v&^hwBits | old&hwBits

	wasStarted := old&meson.CtlStart != 0
	started := v&meson.CtlStart != 0

	switch {
	case !wasStarted && started:
		c.execute()
	case wasStarted && !started:
		c.halt()
	}
}

func (c *Controller) halt() {
	c.gen++

	if c.pending {
		c.stats.Canceled++
		c.pending = false
	}

	c.regs[meson.RegCtl] &^= meson.CtlStatus
}

func (c *Controller) execute() {
	c.gen++
	c.result = c.run()
	c.pending = true
	c.stats.Lists++

	ctl := c.regs[meson.RegCtl]
	ctl &^= meson.CtlError | meson.CtlCurrTokenMask | meson.CtlRdCountMask
	ctl |= meson.CtlStatus
	c.regs[meson.RegCtl] = ctl

	now := c.engine.CurrentTime()

	if c.result.Hung {
		c.stats.Hangs++
		c.engine.Schedule(timeoutEvent{sim.NewEventBase(now+c.timeout, c), c.gen})

		return
	}

	c.engine.Schedule(completeEvent{sim.NewEventBase(now+c.result.Duration, c), c.gen})
}

// run walks the token list against the targets.
func (c *Controller) run() Transfer {
	tl := [2]uint32{c.regs[meson.RegTokenList0], c.regs[meson.RegTokenList1]}
	wd := [2]uint32{c.regs[meson.RegWData0], c.regs[meson.RegWData1]}
	addr := i2c.Addr(mmio.Field(c.regs[meson.RegAddr], meson.AddrTargetShift, 7))

	t := Transfer{Addr: addr}
	c.rdata = [2]uint32{}
	bits := 0

	fail := func(slot int) {
		t.Failed = true
		t.ErrSlot = slot
		c.stats.Nacks++

		if c.target != nil {
			c.target.Stop()
			c.target = nil
		}
	}

	for slot := 0; slot < meson.Geometry.TokenSlots && !t.Failed; slot++ {
		op := uint8(mmio.Field(tl[slot/8], uint(4*(slot%8)), 4))
		if op == meson.OpEnd {
			break
		}

		t.Slots++

		switch op {
		case meson.OpStart:
			c.target = nil
			bits++
		case meson.OpAddrW, meson.OpAddrR:
			bits += 9
			read := op == meson.OpAddrR

			target, found := c.bus.Lookup(addr)
			if !found || !target.Address(read) {
				fail(slot)
				continue
			}

			c.target = target
			c.reading = read
		case meson.OpData, meson.OpDataLast:
			bits += 9
			if c.target == nil {
				fail(slot)
				continue
			}

			if c.reading {
				if t.Read < meson.Geometry.ReadSlots {
					b := c.target.ReadByte()
					c.rdata[t.Read/4] |= uint32(b) << (8 * (t.Read % 4))
				}
				t.Read++

				continue
			}

			if t.Written >= meson.Geometry.WriteSlots {
				fail(slot)
				continue
			}

			b := byte(wd[t.Written/4] >> (8 * (t.Written % 4)))
			t.Written++

			if !c.target.WriteByte(b) {
				fail(slot)
			}
		case meson.OpStop:
			if c.target != nil {
				c.target.Stop()
				c.target = nil
			}
			bits++
		default:
			fail(slot)
		}

		if c.target != nil && c.target.Holding() {
			t.Hung = true
			break
		}
	}

	t.Duration = c.freq.Clocks(bits + 1)

	return t
}

// Handle finishes token lists.
func (c *Controller) Handle(e sim.Event) error {
	switch e := e.(type) {
	case completeEvent:
		c.finish(e.gen)
	case timeoutEvent:
		c.expire(e.gen)
	default:
		log.Panicf("cannot handle event of %s", reflect.TypeOf(e))
	}

	return nil
}

func (c *Controller) finish(gen uint64) {
	if gen != c.gen || !c.pending {
		return
	}

	c.pending = false

	t := c.result
	ctl := c.regs[meson.RegCtl] &^ meson.CtlStatus

	if t.Failed {
		ctl |= meson.CtlError | uint32(t.ErrSlot)<<meson.CtlCurrTokenShift
	} else {
		rd := t.Read
		if rd > meson.Geometry.ReadSlots {
			rd = meson.Geometry.ReadSlots
		}
		ctl |= uint32(rd) << meson.CtlRdCountShift
	}

	c.regs[meson.RegCtl] = ctl
	c.regs[meson.RegRData0] = c.rdata[0]
	c.regs[meson.RegRData1] = c.rdata[1]

	c.stats.Written += uint64(t.Written)
	c.stats.Read += uint64(t.Read)

	c.invokeTransferHook(t)

	if c.done != nil {
		c.done.Raise()
	}
}

func (c *Controller) expire(gen uint64) {
	if gen != c.gen || !c.pending {
		return
	}

	c.pending = false
	c.target = nil

	c.invokeTransferHook(c.result)

	if c.hung != nil {
		c.hung.Raise()
	}
}

func (c *Controller) invokeTransferHook(t Transfer) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosTransfer,
		Item:   t,
	})
}
