package meson

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/token"
	"github.com/sarchlab/i2cmux/tracing"
	"github.com/sarchlab/i2cmux/transport"
)

// State is the state of the driver's request state machine.
type State int

// Driver states.
const (
	Idle State = iota
	Loading
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts the outcomes of the requests the driver has seen.
type Stats struct {
	Requests  uint64
	Batches   uint64
	Completed uint64
	Nacks     uint64
	NoReads   uint64
	Timeouts  uint64
	Aborted   uint64
	Dropped   uint64
	Deferred  uint64
	Spurious  uint64
}

// Channels are the channels the driver PD listens on.
type Channels struct {
	Broker  microkit.Channel
	IRQ     microkit.Channel
	Timeout microkit.Channel
}

// Comp is the driver protection domain of one I2C master.
type Comp struct {
	sim.HookableBase

	name      string
	kernel    microkit.Kernel
	regs      mmio.Bank
	transport *transport.Context
	channels  Channels
	logger    *log.Logger

	state    State
	deferred bool
	stats    Stats

	req     transport.Handle
	ret     transport.Handle
	retBuf  []byte
	addr    i2c.Addr
	packer  *token.Packer
	batch   token.Batch
	readOff int
	taskID  string
}

// Name returns the name of the driver.
func (c *Comp) Name() string {
	return c.name
}

// Bind attaches the driver to the kernel that runs it.
func (c *Comp) Bind(k microkit.Kernel) {
	c.kernel = k
}

// State returns the state of the request state machine.
func (c *Comp) State() State {
	return c.state
}

// Deferred returns true if a broker notification arrived while busy and was
// not consumed yet.
func (c *Comp) Deferred() bool {
	return c.deferred
}

// Stats returns the request counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Registers returns the controller register bank.
func (c *Comp) Registers() mmio.Bank {
	return c.regs
}

// Transport returns the driver's end of the transport shared with the broker.
func (c *Comp) Transport() *transport.Context {
	return c.transport
}

// Notified handles broker doorbells and controller interrupts.
func (c *Comp) Notified(ch microkit.Channel) {
	switch ch {
	case c.channels.Broker:
		if c.state != Idle {
			c.deferred = true
			c.stats.Deferred++
		}
	case c.channels.IRQ:
		c.complete()
		c.kernel.IRQAck(ch)
	case c.channels.Timeout:
		c.timeout()
		c.kernel.IRQAck(ch)
	default:
		c.logger.Printf("%s: unexpected notification on channel %d", c.name, ch)
	}

	c.work()
}

// work starts queued requests until one is in flight or the request ring is
// empty.
func (c *Comp) work() {
	for c.state == Idle {
		c.deferred = false

		if c.transport.RequestEmpty() || !c.load() {
			return
		}
	}
}

// load takes the next request and starts it. It returns false when the
// request ring cannot be read, leaving the remaining entries alone.
func (c *Comp) load() bool {
	h, req, err := c.transport.PopRequest()
	if err != nil {
		if errors.Is(err, ringbuf.ErrCorrupt) {
			c.logger.Printf("%s: %v", c.name, err)
		}
		return false
	}

	c.stats.Requests++

	if len(req) <= i2c.ReqTokens {
		c.logger.Printf("%s: request of %d bytes carries no tokens", c.name, len(req))
		c.abort(h)
		return true
	}

	addr := i2c.Addr(req[i2c.ReqAddr])
	if !addr.Valid() {
		c.logger.Printf("%s: %v: %s", c.name, i2c.ErrAddressOutOfRange, addr)
		c.abort(h)
		return true
	}

	stream := req[i2c.ReqTokens:]
	if err := token.Validate(stream); err != nil {
		c.logger.Printf("%s: request to %s: %v", c.name, addr, err)
		c.abort(h)
		return true
	}

	rh, ret, err := c.transport.TakeReturn()
	if err != nil {
		c.logger.Printf("%s: no return buffer, dropping request to %s", c.name, addr)
		c.stats.Dropped++
		c.releaseRequest(h)
		return true
	}

	ret[i2c.RetClient] = req[i2c.ReqClient]
	ret[i2c.RetAddr] = req[i2c.ReqAddr]
	ret[i2c.RetErr] = byte(i2c.OK)
	ret[i2c.RetErrToken] = 0

	c.req = h
	c.ret = rh
	c.retBuf = ret
	c.addr = addr
	c.readOff = i2c.RetData
	c.packer = token.NewPacker(stream, Geometry, OpTable)

	c.taskID = sim.GetIDGenerator().Generate()
	tracing.StartTask(c.taskID, "", c, tracing.KindTransfer, "xfer", addr)

	c.loadBatch()

	return true
}

func (c *Comp) loadBatch() {
	c.state = Loading

	batch, err := c.packer.Next()
	if err != nil {
		c.logger.Printf("%s: request to %s: %v", c.name, c.addr, err)
		tracing.AddTaskStep(c.taskID, c, "invalid")
		tracing.EndTask(c.taskID, c)

		if err := c.transport.ReleaseReturn(c.ret); err != nil {
			c.logger.Printf("%s: %v", c.name, err)
		}
		c.abort(c.req)
		c.reset()

		return
	}

	c.batch = batch
	c.stats.Batches++

	c.regs.Store(RegTokenList0, 0)
	c.regs.Store(RegTokenList1, 0)
	c.regs.Store(RegWData0, 0)
	c.regs.Store(RegWData1, 0)
	mmio.StoreBits(c.regs, RegAddr, AddrTargetMask, uint32(c.addr)<<AddrTargetShift)

	c.regs.Store(RegTokenList0, batch.TokenList[0])
	c.regs.Store(RegTokenList1, batch.TokenList[1])
	c.regs.Store(RegWData0, batch.WriteData[0])
	c.regs.Store(RegWData1, batch.WriteData[1])

	tracing.AddTaskStep(c.taskID, c, "batch")

	mmio.Clear(c.regs, RegCtl, CtlStart)
	mmio.Set(c.regs, RegCtl, CtlStart)

	c.state = Running
}

func (c *Comp) complete() {
	if c.state != Running {
		c.logger.Printf("%s: completion interrupt while %s", c.name, c.state)
		c.stats.Spurious++
		return
	}

	c.state = Draining
	mmio.Clear(c.regs, RegCtl, CtlStart)

	ctl := c.regs.Load(RegCtl)
	if ctl&CtlError != 0 {
		slot := int(mmio.Field(ctl, CtlCurrTokenShift, 4))

		code := i2c.Nack
		if slot < len(c.batch.Slots) && c.batch.Slots[slot] == token.AddrR {
			code = i2c.NoReadPossible
		}

		c.finalize(code, uint8(slot))

		return
	}

	n := int(mmio.Field(ctl, CtlRdCountShift, 4))
	c.drain(n)

	if c.packer.Remaining() == 0 {
		c.finalize(i2c.OK, 0)
		return
	}

	c.loadBatch()
}

func (c *Comp) drain(n int) {
	if n > Geometry.ReadSlots {
		c.logger.Printf("%s: controller reports %d bytes read", c.name, n)
		n = Geometry.ReadSlots
	}

	data := [2]uint32{c.regs.Load(RegRData0), c.regs.Load(RegRData1)}
	for i := 0; i < n; i++ {
		if c.readOff >= len(c.retBuf) {
			c.logger.Printf("%s: return buffer overflow", c.name)
			return
		}

		c.retBuf[c.readOff] = byte(data[i/4] >> (8 * (i % 4)))
		c.readOff++
	}
}

func (c *Comp) timeout() {
	mmio.Clear(c.regs, RegCtl, CtlStart)

	if c.state != Running && c.state != Draining {
		c.logger.Printf("%s: timeout interrupt while %s", c.name, c.state)
		c.stats.Spurious++
		return
	}

	c.finalize(i2c.Timeout, 0)
}

func (c *Comp) finalize(code i2c.ErrorCode, errToken uint8) {
	c.retBuf[i2c.RetErr] = byte(code)
	c.retBuf[i2c.RetErrToken] = errToken

	switch code {
	case i2c.OK:
		c.stats.Completed++
	case i2c.Nack:
		c.stats.Nacks++
		tracing.AddTaskStep(c.taskID, c, "nack")
	case i2c.NoReadPossible:
		c.stats.NoReads++
		tracing.AddTaskStep(c.taskID, c, "nack")
	case i2c.Timeout:
		c.stats.Timeouts++
		tracing.AddTaskStep(c.taskID, c, "timeout")
	}

	if err := c.transport.PushReturn(c.ret, c.readOff); err != nil {
		c.logger.Printf("%s: cannot return result: %v", c.name, err)
		if err := c.transport.ReleaseReturn(c.ret); err != nil {
			c.logger.Printf("%s: %v", c.name, err)
		}
	}

	c.releaseRequest(c.req)
	c.kernel.Notify(c.channels.Broker)
	tracing.EndTask(c.taskID, c)

	c.reset()
}

func (c *Comp) abort(h transport.Handle) {
	c.stats.Aborted++
	c.releaseRequest(h)
}

func (c *Comp) releaseRequest(h transport.Handle) {
	if err := c.transport.ReleaseRequest(h); err != nil {
		c.logger.Printf("%s: %v", c.name, err)
	}
}

func (c *Comp) reset() {
	c.state = Idle
	c.retBuf = nil
	c.packer = nil
	c.batch = token.Batch{}
	c.readOff = 0
	c.taskID = ""
}
