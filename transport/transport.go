// Package transport moves I2C requests and responses between protection
// domains through shared memory.
//
// A transport has a request channel and a return channel. Each channel is a
// pair of rings: a free ring of empty buffers and a used ring of buffers
// carrying data. The requester takes request buffers from the request free
// ring, fills them, and places them on the request used ring. The responder
// consumes them, releases them back to the request free ring, and sends
// results through the return channel the same way in the other direction.
//
// Every ring has exactly one producer and one consumer, so the two ends can
// run in different protection domains without locks.
package transport

import (
	"errors"
	"fmt"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/shm"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/token"
)

// HookPosRingUpdate is triggered after any ring of the transport changes.
// The hook item is the *ringbuf.Ring that changed.
var HookPosRingUpdate = &sim.HookPos{Name: "RingUpdate"}

// Handle names one buffer of the pool.
type Handle uint32

// Stats counts the buffers in each place, as seen from one end.
type Stats struct {
	ReqFree int
	ReqUsed int
	RetFree int
	RetUsed int
	Held    int
}

// Total returns the number of buffers accounted for.
func (s Stats) Total() int {
	return s.ReqFree + s.ReqUsed + s.RetFree + s.RetUsed + s.Held
}

// Context is one end's handle on a transport region.
type Context struct {
	sim.HookableBase

	name   string
	config Config
	region *shm.Region
	pool   []byte

	reqFree, reqUsed *ringbuf.Ring
	retFree, retUsed *ringbuf.Ring

	held  map[Handle]bool
	spare []Handle
}

// New formats a transport in region and fills both free rings. It is called
// once, by the side that sets up the system, before any peer attaches.
func New(name string, region *shm.Region, c Config) (*Context, error) {
	t, l, err := prepare(name, region, c)
	if err != nil {
		return nil, err
	}

	slab := func(off int) []byte {
		return region.Bytes()[off : off+l.SlabSize]
	}

	if t.reqFree, err = ringbuf.Init(name+".ReqFree", slab(l.ReqFree), c.BufCount); err != nil {
		return nil, err
	}
	if t.reqUsed, err = ringbuf.Init(name+".ReqUsed", slab(l.ReqUsed), c.BufCount); err != nil {
		return nil, err
	}
	if t.retFree, err = ringbuf.Init(name+".RetFree", slab(l.RetFree), c.BufCount); err != nil {
		return nil, err
	}
	if t.retUsed, err = ringbuf.Init(name+".RetUsed", slab(l.RetUsed), c.BufCount); err != nil {
		return nil, err
	}

	for i := 0; i < c.BufCount; i++ {
		d := ringbuf.Desc{Index: uint32(i)}
		if err := t.reqFree.Enqueue(d); err != nil {
			return nil, err
		}
		if err := t.retFree.Enqueue(d); err != nil {
			return nil, err
		}
	}

	t.setLimits()

	return t, nil
}

// Attach binds to a transport that New has formatted.
func Attach(name string, region *shm.Region, c Config) (*Context, error) {
	t, l, err := prepare(name, region, c)
	if err != nil {
		return nil, err
	}

	slab := func(off int) []byte {
		return region.Bytes()[off : off+l.SlabSize]
	}

	if t.reqFree, err = ringbuf.Attach(name+".ReqFree", slab(l.ReqFree)); err != nil {
		return nil, err
	}
	if t.reqUsed, err = ringbuf.Attach(name+".ReqUsed", slab(l.ReqUsed)); err != nil {
		return nil, err
	}
	if t.retFree, err = ringbuf.Attach(name+".RetFree", slab(l.RetFree)); err != nil {
		return nil, err
	}
	if t.retUsed, err = ringbuf.Attach(name+".RetUsed", slab(l.RetUsed)); err != nil {
		return nil, err
	}

	t.setLimits()

	return t, nil
}

func prepare(
	name string,
	region *shm.Region,
	c Config,
) (*Context, Layout, error) {
	if err := c.Validate(); err != nil {
		return nil, Layout{}, fmt.Errorf("transport %s: %w", name, err)
	}

	l := c.Layout()
	if region.Len() < l.Size {
		return nil, l, fmt.Errorf("transport %s: region of %d bytes, need %d",
			name, region.Len(), l.Size)
	}

	t := &Context{
		name:   name,
		config: c,
		region: region,
		pool:   region.Bytes()[l.Pool : l.Pool+l.PoolSize],
		held:   make(map[Handle]bool),
	}

	return t, l, nil
}

func (t *Context) setLimits() {
	for _, r := range t.Rings() {
		r.SetLimits(uint32(t.config.BufCount), uint32(t.config.BufSize))
	}
}

// Name returns the name of the transport end.
func (t *Context) Name() string {
	return t.name
}

// Config returns the geometry of the transport.
func (t *Context) Config() Config {
	return t.config
}

// Rings returns the four rings in layout order.
func (t *Context) Rings() []*ringbuf.Ring {
	return []*ringbuf.Ring{t.reqFree, t.reqUsed, t.retFree, t.retUsed}
}

// Buffer returns the whole pool buffer named by h.
func (t *Context) Buffer(h Handle) []byte {
	if int(h) >= 2*t.config.BufCount {
		panic(fmt.Sprintf("transport %s: buffer %d out of range", t.name, h))
	}

	start := int(h) * t.config.BufSize
	end := start + t.config.BufSize

	return t.pool[start:end:end]
}

// RequestEmpty returns true if no request waits on the request used ring.
func (t *Context) RequestEmpty() bool {
	return t.reqUsed.Empty()
}

// ReturnEmpty returns true if no response waits on the return used ring.
func (t *Context) ReturnEmpty() bool {
	return t.retUsed.Empty()
}

// Stats returns the buffer counts seen from this end.
func (t *Context) Stats() Stats {
	return Stats{
		ReqFree: t.reqFree.Len(),
		ReqUsed: t.reqUsed.Len(),
		RetFree: t.retFree.Len(),
		RetUsed: t.retUsed.Len(),
		Held:    len(t.held) + len(t.spare),
	}
}

// Allocate takes a free request buffer, writes the header and payload, and
// queues it for the responder. It never blocks; it fails with
// i2c.ErrTransportFull when no request buffer is free.
func (t *Context) Allocate(
	client i2c.ClientID,
	addr i2c.Addr,
	payload []byte,
) (Handle, error) {
	if len(payload) > t.config.MaxRequest() {
		return 0, fmt.Errorf("%w: %d bytes", i2c.ErrOversizedRequest, len(payload))
	}

	h, buf, err := t.takeRequest()
	if err != nil {
		return 0, err
	}

	buf[i2c.ReqClient] = byte(client)
	buf[i2c.ReqAddr] = byte(addr)
	copy(buf[i2c.ReqTokens:], payload)

	return h, t.queueRequest(h, i2c.ReqTokens+len(payload))
}

// AllocateTransaction composes the token stream for data in mode directly
// into a free request buffer and queues it. The client id is left zero; the
// broker fills it in.
func (t *Context) AllocateTransaction(
	addr i2c.Addr,
	mode token.Mode,
	data []byte,
) (Handle, error) {
	if len(data) == 0 {
		return 0, i2c.ErrEmptyPayload
	}

	if len(data) > token.MaxPayload(mode, t.config.MaxRequest()) {
		return 0, fmt.Errorf("%w: %d bytes in %s mode",
			i2c.ErrOversizedRequest, len(data), mode)
	}

	h, buf, err := t.takeRequest()
	if err != nil {
		return 0, err
	}

	buf[i2c.ReqClient] = 0
	buf[i2c.ReqAddr] = byte(addr)

	n, err := token.Compose(buf[i2c.ReqTokens:], mode, data)
	if err != nil {
		t.spare = append(t.spare, h)
		return 0, err
	}

	return h, t.queueRequest(h, i2c.ReqTokens+n)
}

func (t *Context) takeRequest() (Handle, []byte, error) {
	if n := len(t.spare); n > 0 {
		h := t.spare[n-1]
		t.spare = t.spare[:n-1]

		return h, t.Buffer(h), nil
	}

	d, err := t.reqFree.Dequeue()
	t.invokeRingHook(t.reqFree)
	if err != nil {
		return 0, nil, noneFree(err)
	}

	h := Handle(d.Index)

	return h, t.Buffer(h), nil
}

func (t *Context) queueRequest(h Handle, size int) error {
	err := t.reqUsed.Enqueue(ringbuf.Desc{Index: uint32(h), Len: uint32(size)})
	if err != nil {
		t.spare = append(t.spare, h)
		return err
	}

	t.invokeRingHook(t.reqUsed)

	return nil
}

// PopRequest takes the oldest queued request. The returned slice covers the
// request's logical size. The buffer stays held until ReleaseRequest.
func (t *Context) PopRequest() (Handle, []byte, error) {
	d, err := t.reqUsed.Dequeue()
	t.invokeRingHook(t.reqUsed)
	if err != nil {
		return 0, nil, err
	}

	h := Handle(d.Index)
	t.held[h] = true

	return h, t.Buffer(h)[:d.Len], nil
}

// ReleaseRequest returns a request buffer to the request free ring.
func (t *Context) ReleaseRequest(h Handle) error {
	if !t.held[h] || int(h) >= t.config.BufCount {
		return fmt.Errorf("%w: request buffer %d", i2c.ErrDoubleRelease, h)
	}

	if err := t.reqFree.Enqueue(ringbuf.Desc{Index: uint32(h)}); err != nil {
		return err
	}

	delete(t.held, h)
	t.invokeRingHook(t.reqFree)

	return nil
}

// TakeReturn takes a free return buffer for a response. It fails with
// i2c.ErrTransportFull when none is free.
func (t *Context) TakeReturn() (Handle, []byte, error) {
	d, err := t.retFree.Dequeue()
	t.invokeRingHook(t.retFree)
	if err != nil {
		return 0, nil, noneFree(err)
	}

	h := t.retHandle(d.Index)
	t.held[h] = true

	return h, t.Buffer(h), nil
}

// PushReturn queues a held return buffer carrying size bytes.
func (t *Context) PushReturn(h Handle, size int) error {
	if !t.held[h] || !t.isReturn(h) {
		return fmt.Errorf("%w: return buffer %d", i2c.ErrDoubleRelease, h)
	}

	if size > t.config.BufSize {
		return fmt.Errorf("%w: %d bytes", i2c.ErrOversizedRequest, size)
	}

	d := ringbuf.Desc{Index: t.retIndex(h), Len: uint32(size)}
	if err := t.retUsed.Enqueue(d); err != nil {
		return err
	}

	delete(t.held, h)
	t.invokeRingHook(t.retUsed)

	return nil
}

// PopReturn takes the oldest queued response. The returned slice covers the
// response's logical size. The buffer stays held until ReleaseReturn.
func (t *Context) PopReturn() (Handle, []byte, error) {
	d, err := t.retUsed.Dequeue()
	t.invokeRingHook(t.retUsed)
	if err != nil {
		return 0, nil, err
	}

	h := t.retHandle(d.Index)
	t.held[h] = true

	return h, t.Buffer(h)[:d.Len], nil
}

// ReleaseReturn returns a return buffer to the return free ring.
func (t *Context) ReleaseReturn(h Handle) error {
	if !t.held[h] || !t.isReturn(h) {
		return fmt.Errorf("%w: return buffer %d", i2c.ErrDoubleRelease, h)
	}

	if err := t.retFree.Enqueue(ringbuf.Desc{Index: t.retIndex(h)}); err != nil {
		return err
	}

	delete(t.held, h)
	t.invokeRingHook(t.retFree)

	return nil
}

// noneFree reports an empty free ring as a full transport.
func noneFree(err error) error {
	if errors.Is(err, ringbuf.ErrEmpty) {
		return i2c.ErrTransportFull
	}

	return err
}

func (t *Context) retHandle(index uint32) Handle {
	return Handle(index) + Handle(t.config.BufCount)
}

func (t *Context) retIndex(h Handle) uint32 {
	return uint32(h) - uint32(t.config.BufCount)
}

func (t *Context) isReturn(h Handle) bool {
	return int(h) >= t.config.BufCount && int(h) < 2*t.config.BufCount
}

func (t *Context) invokeRingHook(r *ringbuf.Ring) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(sim.HookCtx{
		Domain: t,
		Pos:    HookPosRingUpdate,
		Item:   r,
	})
}
