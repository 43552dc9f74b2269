// Package broker implements the server protection domain that multiplexes
// one I2C bus among many clients. It owns the security table mapping bus
// addresses to clients, checks every request against it, and routes
// requests to the driver and responses back to the client that sent them.
package broker

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/tracing"
	"github.com/sarchlab/i2cmux/transport"
)

// ClientState tracks where the latest request of a client is.
type ClientState int

// Client states.
const (
	ClientIdle ClientState = iota
	RequestPending
	Forwarded
	Completed
	Faulted
)

func (s ClientState) String() string {
	switch s {
	case ClientIdle:
		return "idle"
	case RequestPending:
		return "request-pending"
	case Forwarded:
		return "forwarded"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("ClientState(%d)", int(s))
	}
}

// Stats counts what the broker did with requests and responses.
type Stats struct {
	Forwarded        uint64
	Completed        uint64
	NotOwned         uint64
	DriverBusy       uint64
	InvalidClient    uint64
	DeliveryFailures uint64
	Malformed        uint64
	Claims           uint64
	Releases         uint64
	Rejected         uint64
}

// ClientInfo describes one client for monitoring.
type ClientInfo struct {
	ID          i2c.ClientID
	Channel     microkit.Channel
	State       ClientState
	Outstanding int
}

type client struct {
	id        i2c.ClientID
	channel   microkit.Channel
	transport *transport.Context

	state       ClientState
	outstanding int
}

// Comp is the broker protection domain.
type Comp struct {
	sim.HookableBase

	name      string
	kernel    microkit.Kernel
	logger    *log.Logger
	security  *Security
	driverCh  microkit.Channel
	driver    *transport.Context
	clients   []*client
	byChannel map[microkit.Channel]*client
	byID      map[i2c.ClientID]*client
	stats     Stats
}

// Name returns the name of the broker.
func (c *Comp) Name() string {
	return c.name
}

// Bind attaches the broker to the kernel that runs it.
func (c *Comp) Bind(k microkit.Kernel) {
	c.kernel = k
}

// Stats returns the broker counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Security returns the security table.
func (c *Comp) Security() *Security {
	return c.security
}

// Owner returns the client that owns addr.
func (c *Comp) Owner(addr i2c.Addr) (i2c.ClientID, bool) {
	return c.security.Owner(addr)
}

// DriverTransport returns the broker's end of the transport shared with the
// driver.
func (c *Comp) DriverTransport() *transport.Context {
	return c.driver
}

// ClientTransport returns the broker's end of the transport shared with a
// client.
func (c *Comp) ClientTransport(id i2c.ClientID) (*transport.Context, bool) {
	cl, ok := c.byID[id]
	if !ok {
		return nil, false
	}

	return cl.transport, true
}

// Clients lists the clients in channel order.
func (c *Comp) Clients() []ClientInfo {
	infos := make([]ClientInfo, 0, len(c.clients))
	for _, cl := range c.clients {
		infos = append(infos, ClientInfo{
			ID:          cl.id,
			Channel:     cl.channel,
			State:       cl.state,
			Outstanding: cl.outstanding,
		})
	}

	return infos
}

// RevokeClient releases every address owned by a client. It is meant for
// the environment to call when a client terminates.
func (c *Comp) RevokeClient(id i2c.ClientID) int {
	n := c.security.Revoke(id)
	if n > 0 {
		c.logger.Printf("%s: revoked %d addresses of client %d", c.name, n, id)
	}

	return n
}

// Notified handles doorbells from clients and the driver.
func (c *Comp) Notified(ch microkit.Channel) {
	if ch == c.driverCh {
		c.deliverResponses()
	} else if cl, ok := c.byChannel[ch]; ok {
		c.forwardRequests(cl)
	} else {
		c.logger.Printf("%s: notification on unknown channel %d", c.name, ch)
		return
	}

	if !c.driver.RequestEmpty() {
		c.kernel.Notify(c.driverCh)
	}
}

func (c *Comp) forwardRequests(cl *client) {
	for !cl.transport.RequestEmpty() {
		if !c.forward(cl) {
			return
		}
	}
}

// forward moves one request from a client to the driver. It returns false
// if the client ring cannot be read.
func (c *Comp) forward(cl *client) bool {
	h, req, err := cl.transport.PopRequest()
	if err != nil {
		if errors.Is(err, ringbuf.ErrCorrupt) {
			c.logger.Printf("%s: client %d: %v", c.name, cl.id, err)
		}
		return false
	}

	cl.state = RequestPending

	taskID := sim.GetIDGenerator().Generate()
	tracing.StartTask(taskID, "", c, tracing.KindForward, "fwd", cl.id)
	defer tracing.EndTask(taskID, c)

	step := c.route(cl, req)
	tracing.AddTaskStep(taskID, c, step)

	if err := cl.transport.ReleaseRequest(h); err != nil {
		c.logger.Printf("%s: client %d: %v", c.name, cl.id, err)
	}

	if cl.outstanding > 0 {
		cl.state = Forwarded
	} else {
		cl.state = ClientIdle
	}

	return true
}

func (c *Comp) route(cl *client, req []byte) string {
	if len(req) < i2c.ReqTokens {
		c.stats.Malformed++
		c.logger.Printf("%s: client %d: request of %d bytes", c.name, cl.id, len(req))

		return "malformed"
	}

	addr := i2c.Addr(req[i2c.ReqAddr])
	if !c.security.Owns(cl.id, addr) {
		c.stats.NotOwned++
		c.logger.Printf("%s: client %d: %v: %s",
			c.name, cl.id, i2c.ErrAddressNotOwned, addr)

		return "not-owned"
	}

	_, err := c.driver.Allocate(cl.id, addr, req[i2c.ReqTokens:])
	switch {
	case errors.Is(err, i2c.ErrTransportFull):
		c.stats.DriverBusy++
		c.logger.Printf("%s: client %d: %v: %v",
			c.name, cl.id, i2c.ErrDriverBusy, err)

		return "busy"
	case err != nil:
		c.stats.Malformed++
		c.logger.Printf("%s: client %d: request to %s: %v",
			c.name, cl.id, addr, err)

		return "malformed"
	}

	c.stats.Forwarded++
	cl.outstanding++

	return "forwarded"
}

func (c *Comp) deliverResponses() {
	var notify []*client

	for !c.driver.ReturnEmpty() {
		h, ret, err := c.driver.PopReturn()
		if err != nil {
			c.logger.Printf("%s: driver: %v", c.name, err)
			break
		}

		cl := c.deliver(ret)
		if cl != nil && !contains(notify, cl) {
			notify = append(notify, cl)
		}

		if err := c.driver.ReleaseReturn(h); err != nil {
			c.logger.Printf("%s: driver: %v", c.name, err)
		}
	}

	sort.Slice(notify, func(i, j int) bool {
		return notify[i].channel < notify[j].channel
	})

	for _, cl := range notify {
		c.kernel.Notify(cl.channel)
	}
}

// deliver copies one response into the return ring of its client. It
// returns the client to notify, or nil if nothing was delivered.
func (c *Comp) deliver(ret []byte) *client {
	taskID := sim.GetIDGenerator().Generate()
	tracing.StartTask(taskID, "", c, tracing.KindDeliver, "dlv", nil)
	defer tracing.EndTask(taskID, c)

	if len(ret) < i2c.RetData {
		c.stats.Malformed++
		c.logger.Printf("%s: response of %d bytes", c.name, len(ret))
		tracing.AddTaskStep(taskID, c, "malformed")

		return nil
	}

	id := i2c.ClientID(ret[i2c.RetClient])

	cl, ok := c.byID[id]
	if !ok {
		c.stats.InvalidClient++
		c.logger.Printf("%s: %v: %d", c.name, i2c.ErrInvalidClient, id)
		tracing.AddTaskStep(taskID, c, "invalid-client")

		return nil
	}

	if cl.outstanding > 0 {
		cl.outstanding--
	}

	if i2c.ErrorCode(ret[i2c.RetErr]) == i2c.OK {
		cl.state = Completed
	} else {
		cl.state = Faulted
	}

	if err := c.copyResponse(cl, ret); err != nil {
		c.stats.DeliveryFailures++
		c.logger.Printf("%s: client %d: cannot deliver response: %v",
			c.name, cl.id, err)
		tracing.AddTaskStep(taskID, c, "undeliverable")

		return nil
	}

	c.stats.Completed++
	tracing.AddTaskStep(taskID, c, "delivered")

	if cl.outstanding == 0 {
		cl.state = ClientIdle
	}

	return cl
}

func (c *Comp) copyResponse(cl *client, ret []byte) error {
	h, buf, err := cl.transport.TakeReturn()
	if err != nil {
		return err
	}

	if len(ret) > len(buf) {
		_ = cl.transport.ReleaseReturn(h)
		return fmt.Errorf("%w: %d bytes", i2c.ErrOversizedRequest, len(ret))
	}

	copy(buf, ret)

	if err := cl.transport.PushReturn(h, len(ret)); err != nil {
		_ = cl.transport.ReleaseReturn(h)
		return err
	}

	return nil
}

func contains(clients []*client, cl *client) bool {
	for _, c := range clients {
		if c == cl {
			return true
		}
	}

	return false
}

// Protected serves claim and release calls. The caller is identified by the
// channel the call arrived on.
func (c *Comp) Protected(ch microkit.Channel, msg microkit.Message) microkit.Message {
	status := c.serve(ch, msg)
	if status != StatusOK {
		c.stats.Rejected++
	}

	return StatusMessage(status)
}

func (c *Comp) serve(ch microkit.Channel, msg microkit.Message) Status {
	cl, ok := c.byChannel[ch]
	if !ok {
		c.logger.Printf("%s: protected call on unknown channel %d", c.name, ch)
		return StatusInvalidClient
	}

	if msg.Get(MRClient) != uint64(cl.id) {
		c.logger.Printf("%s: client %d: call claims to be client %d",
			c.name, cl.id, msg.Get(MRClient))
		return StatusInvalidClient
	}

	raw := msg.Get(MRAddr)
	if raw > uint64(i2c.MaxAddr) {
		return StatusInvalidAddress
	}

	addr := i2c.Addr(raw)

	switch msg.Get(MRType) {
	case ReqClaim:
		err := c.security.Claim(addr, cl.id)
		if err == nil {
			c.stats.Claims++
		}

		return StatusOf(err)
	case ReqRelease:
		err := c.security.Release(addr, cl.id)
		if err == nil {
			c.stats.Releases++
		}

		return StatusOf(err)
	default:
		c.logger.Printf("%s: client %d: %v: type %d",
			c.name, cl.id, i2c.ErrInvalidRequest, msg.Get(MRType))
		return StatusInvalidRequest
	}
}
