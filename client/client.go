// Package client is the library a protection domain uses to reach an I2C
// bus through the broker. Requests are composed straight into shared request
// buffers, and the broker doorbell is rung after each one. Results come
// back through the return ring and are handed out in arrival order.
package client

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/i2cmux/broker"
	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/token"
	"github.com/sarchlab/i2cmux/tracing"
	"github.com/sarchlab/i2cmux/transport"
)

// Result is the outcome of one Write, Read or WriteRead.
type Result struct {
	Addr     i2c.Addr
	Code     i2c.ErrorCode
	ErrToken uint8
	Data     []byte
	Err      error
}

// Stats counts the traffic of a client.
type Stats struct {
	Sent      uint64
	Received  uint64
	Failed    uint64
	Unmatched uint64
	Expired   uint64
}

type pending struct {
	taskID string
	mode   token.Mode

	// chained marks the write half of a WriteRead. Its result is folded
	// into the result of the read that follows it.
	chained bool
	prior   *Result
}

// Comp is a client protection domain.
type Comp struct {
	sim.HookableBase

	name      string
	id        i2c.ClientID
	kernel    microkit.Kernel
	brokerCh  microkit.Channel
	transport *transport.Context
	logger    *log.Logger
	onResult  func(Result)

	pending     map[i2c.Addr][]*pending
	outstanding int
	results     []Result
	stats       Stats
}

// Name returns the name of the client.
func (c *Comp) Name() string {
	return c.name
}

// ID returns the identity the broker knows the client by.
func (c *Comp) ID() i2c.ClientID {
	return c.id
}

// Bind attaches the client to the kernel that runs it.
func (c *Comp) Bind(k microkit.Kernel) {
	c.kernel = k
}

// Transport returns the client's end of the transport shared with the
// broker.
func (c *Comp) Transport() *transport.Context {
	return c.transport
}

// Stats returns the traffic counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Outstanding returns the number of queued requests whose response has not
// arrived. Requests the broker refuses never get one, so they stay counted
// until Expire is called.
func (c *Comp) Outstanding() int {
	return c.outstanding
}

// Expire gives up on every outstanding request. It must be called once the
// system has gone idle without answering them, so that later results are
// not matched against requests the broker dropped. It returns the number of
// requests given up.
func (c *Comp) Expire() int {
	n := 0

	for addr, q := range c.pending {
		for _, p := range q {
			tracing.AddTaskStep(p.taskID, c, "expired")
			tracing.EndTask(p.taskID, c)
			n++
		}

		delete(c.pending, addr)
	}

	if n > 0 {
		c.logger.Printf("%s: gave up on %d request(s)", c.name, n)
	}

	c.outstanding = 0
	c.stats.Expired += uint64(n)

	return n
}

// OnResult sets the function that receives results. Without one, results
// queue up for PopResult.
func (c *Comp) OnResult(f func(Result)) {
	c.onResult = f
}

// PopResult takes the oldest queued result.
func (c *Comp) PopResult() (Result, bool) {
	if len(c.results) == 0 {
		return Result{}, false
	}

	r := c.results[0]
	c.results = c.results[1:]

	return r, true
}

// Claim asks the broker for exclusive use of addr.
func (c *Comp) Claim(addr i2c.Addr) error {
	return c.call(broker.ClaimMessage(addr, c.id), "claim", addr)
}

// Release gives addr back to the broker.
func (c *Comp) Release(addr i2c.Addr) error {
	return c.call(broker.ReleaseMessage(addr, c.id), "release", addr)
}

func (c *Comp) call(msg microkit.Message, what string, addr i2c.Addr) error {
	if !addr.Valid() {
		return fmt.Errorf("%s %s: %w", what, addr, i2c.ErrInvalidAddress)
	}

	rsp, err := c.kernel.PPCall(c.brokerCh, msg)
	if err != nil {
		return fmt.Errorf("%s %s: %w", what, addr, err)
	}

	if err := broker.ParseStatus(rsp).Err(); err != nil {
		return fmt.Errorf("%s %s: %w", what, addr, err)
	}

	return nil
}

// Write queues a write of data to addr.
func (c *Comp) Write(addr i2c.Addr, data []byte) error {
	if err := c.check(addr, token.Write, len(data)); err != nil {
		return err
	}

	if err := c.submit(addr, token.Write, data, false); err != nil {
		return err
	}

	c.kernel.Notify(c.brokerCh)

	return nil
}

// Read queues a read of n bytes from addr.
func (c *Comp) Read(addr i2c.Addr, n int) error {
	if err := c.check(addr, token.Read, n); err != nil {
		return err
	}

	if err := c.submit(addr, token.Read, make([]byte, n), false); err != nil {
		return err
	}

	c.kernel.Notify(c.brokerCh)

	return nil
}

// WriteRead queues a write of w followed by a read of n bytes, typically to
// select a register and read it back. The two requests produce one result.
func (c *Comp) WriteRead(addr i2c.Addr, w []byte, n int) error {
	if err := c.check(addr, token.WriteContinued, len(w)); err != nil {
		return err
	}

	if err := c.check(addr, token.Read, n); err != nil {
		return err
	}

	if err := c.submit(addr, token.WriteContinued, w, true); err != nil {
		return err
	}

	if err := c.submit(addr, token.Read, make([]byte, n), false); err != nil {
		c.unchain(addr)
		c.kernel.Notify(c.brokerCh)

		return err
	}

	c.kernel.Notify(c.brokerCh)

	return nil
}

func (c *Comp) check(addr i2c.Addr, mode token.Mode, n int) error {
	if !addr.Valid() {
		return fmt.Errorf("%s %s: %w", mode, addr, i2c.ErrInvalidAddress)
	}

	if n <= 0 {
		return fmt.Errorf("%s %s: %w", mode, addr, i2c.ErrEmptyPayload)
	}

	if n > token.MaxPayload(mode, c.transport.Config().MaxRequest()) {
		return fmt.Errorf("%s %s: %w: %d bytes",
			mode, addr, i2c.ErrOversizedRequest, n)
	}

	return nil
}

func (c *Comp) submit(addr i2c.Addr, mode token.Mode, data []byte, chained bool) error {
	if _, err := c.transport.AllocateTransaction(addr, mode, data); err != nil {
		return fmt.Errorf("%s %s: %w", mode, addr, err)
	}

	p := &pending{
		taskID:  sim.GetIDGenerator().Generate(),
		mode:    mode,
		chained: chained,
	}

	what := "write"
	if mode.IsRead() {
		what = "read"
	}
	tracing.StartTask(p.taskID, "", c, tracing.KindRequest, what, addr)

	c.pending[addr] = append(c.pending[addr], p)
	c.outstanding++
	c.stats.Sent++

	return nil
}

// unchain turns the last queued request to addr into a standalone one.
func (c *Comp) unchain(addr i2c.Addr) {
	q := c.pending[addr]
	if len(q) > 0 {
		q[len(q)-1].chained = false
	}
}

// Notified collects results after a broker doorbell.
func (c *Comp) Notified(ch microkit.Channel) {
	if ch != c.brokerCh {
		c.logger.Printf("%s: notification on unknown channel %d", c.name, ch)
		return
	}

	for !c.transport.ReturnEmpty() {
		h, ret, err := c.transport.PopReturn()
		if err != nil {
			if errors.Is(err, ringbuf.ErrCorrupt) {
				c.logger.Printf("%s: %v", c.name, err)
			}
			return
		}

		r, ok := c.parse(ret)

		if err := c.transport.ReleaseReturn(h); err != nil {
			c.logger.Printf("%s: %v", c.name, err)
		}

		if ok {
			c.receive(r)
		}
	}
}

func (c *Comp) parse(ret []byte) (Result, bool) {
	if len(ret) < i2c.RetData {
		c.logger.Printf("%s: result of %d bytes", c.name, len(ret))
		return Result{}, false
	}

	code := i2c.ErrorCode(ret[i2c.RetErr])
	errToken := ret[i2c.RetErrToken]

	r := Result{
		Addr:     i2c.Addr(ret[i2c.RetAddr]),
		Code:     code,
		ErrToken: errToken,
		Err:      code.Err(errToken),
	}

	if len(ret) > i2c.RetData {
		r.Data = append([]byte(nil), ret[i2c.RetData:]...)
	}

	return r, true
}

func (c *Comp) receive(r Result) {
	c.stats.Received++

	q := c.pending[r.Addr]
	if len(q) == 0 {
		c.stats.Unmatched++
		c.logger.Printf("%s: unexpected result from %s", c.name, r.Addr)
		c.deliver(r)

		return
	}

	p := q[0]
	c.pending[r.Addr] = q[1:]
	if len(c.pending[r.Addr]) == 0 {
		delete(c.pending, r.Addr)
	}
	c.outstanding--

	if r.Err != nil {
		tracing.AddTaskStep(p.taskID, c, r.Code.String())
	}
	tracing.EndTask(p.taskID, c)

	if next := c.pending[r.Addr]; p.chained && len(next) > 0 {
		if r.Err != nil {
			next[0].prior = &r
		}
		return
	}

	if p.prior != nil {
		r.Code = p.prior.Code
		r.ErrToken = p.prior.ErrToken
		r.Err = p.prior.Err
		r.Data = nil
	}

	c.deliver(r)
}

func (c *Comp) deliver(r Result) {
	if r.Err != nil {
		c.stats.Failed++
	}

	if c.onResult != nil {
		c.onResult(r)
		return
	}

	c.results = append(c.results, r)
}
