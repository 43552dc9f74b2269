// Package ringbuf implements a lock-free single-producer single-consumer
// descriptor ring that lives inside a shared memory slab.
//
// Slab layout:
//
//	0x00  write index   (uint32, owned by the producer)
//	0x04  read index    (uint32, owned by the consumer)
//	0x08  capacity      (uint32)
//	0x0C  magic         (uint32)
//	0x10  descriptors   (capacity x {index uint32, length uint32})
//
// The indices run freely and wrap at 2^32, so the capacity must be a power of
// two.
package ringbuf

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/sarchlab/i2cmux/i2c"
)

// Slab geometry.
const (
	HeaderSize = 16
	DescSize   = 8
	SlabAlign  = 64

	magic = 0x474e4952
)

// Errors returned by ring operations.
var (
	ErrFull    = i2c.ErrTransportFull
	ErrEmpty   = i2c.ErrTransportEmpty
	ErrCorrupt = i2c.ErrCorruptDescriptor
)

// Desc names one pool buffer and the number of meaningful bytes in it.
type Desc struct {
	Index uint32
	Len   uint32
}

// SlabSize returns the number of bytes a ring of the given capacity needs,
// rounded up to the slab alignment.
func SlabSize(capacity int) int {
	size := HeaderSize + capacity*DescSize
	return (size + SlabAlign - 1) / SlabAlign * SlabAlign
}

// Ring is one end's handle on a ring slab.
type Ring struct {
	name     string
	write    *uint32
	read     *uint32
	entries  []byte
	capacity uint32

	maxIndex uint32
	maxLen   uint32
}

// Init formats buf as an empty ring. Only the side that owns the region calls
// Init; the peer calls Attach.
func Init(name string, buf []byte, capacity int) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring %s: capacity %d is not a power of two",
			name, capacity)
	}

	if len(buf) < SlabSize(capacity) {
		return nil, fmt.Errorf("ring %s: slab of %d bytes cannot hold %d entries",
			name, len(buf), capacity)
	}

	r := bind(name, buf, uint32(capacity))
	atomic.StoreUint32(r.write, 0)
	atomic.StoreUint32(r.read, 0)
	binary.LittleEndian.PutUint32(buf[8:], uint32(capacity))
	binary.LittleEndian.PutUint32(buf[12:], magic)

	return r, nil
}

// Attach binds to a ring that the owner has already formatted.
func Attach(name string, buf []byte) (*Ring, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("ring %s: slab too small", name)
	}

	if binary.LittleEndian.Uint32(buf[12:]) != magic {
		return nil, fmt.Errorf("ring %s: slab is not formatted", name)
	}

	capacity := binary.LittleEndian.Uint32(buf[8:])
	if capacity == 0 || capacity&(capacity-1) != 0 ||
		len(buf) < SlabSize(int(capacity)) {
		return nil, fmt.Errorf("ring %s: bad capacity %d", name, capacity)
	}

	return bind(name, buf, capacity), nil
}

func bind(name string, buf []byte, capacity uint32) *Ring {
	return &Ring{
		name:     name,
		write:    (*uint32)(unsafe.Pointer(&buf[0])),
		read:     (*uint32)(unsafe.Pointer(&buf[4])),
		entries:  buf[HeaderSize : HeaderSize+int(capacity)*DescSize],
		capacity: capacity,
	}
}

// SetLimits makes Dequeue reject descriptors whose index is not below
// maxIndex or whose length exceeds maxLen. Zero disables a check.
func (r *Ring) SetLimits(maxIndex, maxLen uint32) {
	r.maxIndex = maxIndex
	r.maxLen = maxLen
}

// Name returns the name of the ring.
func (r *Ring) Name() string {
	return r.name
}

// Capacity returns the number of descriptors the ring can hold.
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// Len returns the number of descriptors in the ring.
func (r *Ring) Len() int {
	return int(atomic.LoadUint32(r.write) - atomic.LoadUint32(r.read))
}

// Empty returns true if there is nothing to dequeue.
func (r *Ring) Empty() bool {
	return r.Len() == 0
}

// Full returns true if Enqueue would fail.
func (r *Ring) Full() bool {
	return r.Len() >= int(r.capacity)
}

// Enqueue appends a descriptor. Only the producer may call it.
func (r *Ring) Enqueue(d Desc) error {
	w := atomic.LoadUint32(r.write)
	rd := atomic.LoadUint32(r.read)

	if w-rd >= r.capacity {
		return ErrFull
	}

	slot := r.entries[(w&(r.capacity-1))*DescSize:]
	binary.LittleEndian.PutUint32(slot[0:], d.Index)
	binary.LittleEndian.PutUint32(slot[4:], d.Len)

	atomic.StoreUint32(r.write, w+1)

	return nil
}

// Dequeue removes the oldest descriptor. Only the consumer may call it. A
// descriptor outside the limits is consumed and reported as corrupt.
func (r *Ring) Dequeue() (Desc, error) {
	rd := atomic.LoadUint32(r.read)
	w := atomic.LoadUint32(r.write)

	if w == rd {
		return Desc{}, ErrEmpty
	}

	if w-rd > r.capacity {
		return Desc{}, fmt.Errorf("%w: ring %s indices %d/%d",
			ErrCorrupt, r.name, w, rd)
	}

	slot := r.entries[(rd&(r.capacity-1))*DescSize:]
	d := Desc{
		Index: binary.LittleEndian.Uint32(slot[0:]),
		Len:   binary.LittleEndian.Uint32(slot[4:]),
	}

	atomic.StoreUint32(r.read, rd+1)

	if r.maxIndex > 0 && d.Index >= r.maxIndex {
		return d, fmt.Errorf("%w: ring %s buffer %d", ErrCorrupt, r.name, d.Index)
	}

	if r.maxLen > 0 && d.Len > r.maxLen {
		return d, fmt.Errorf("%w: ring %s length %d", ErrCorrupt, r.name, d.Len)
	}

	return d, nil
}
