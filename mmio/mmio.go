// Package mmio provides access to 32-bit memory-mapped device registers.
//
// A Bank only exposes the registers named in its Map. Touching any other
// offset panics, the same way an access outside a mapped device frame faults
// on the target.
package mmio

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/sarchlab/i2cmux/shm"
)

// Reg is the byte offset of a register inside its device frame.
type Reg uint32

// Bank is a device's register file.
type Bank interface {
	Load(r Reg) uint32
	Store(r Reg, v uint32)
}

// Map names the registers of a device.
type Map map[Reg]string

// Regs returns the offsets in ascending order.
func (m Map) Regs() []Reg {
	regs := make([]Reg, 0, len(m))
	for r := range m {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })

	return regs
}

func (m Map) mustContain(device string, r Reg) {
	if _, ok := m[r]; !ok {
		panic(fmt.Sprintf("%s: no register at offset 0x%02x", device, uint32(r)))
	}
}

// StoreBits replaces the bits selected by mask with the same bits of v.
func StoreBits(b Bank, r Reg, mask, v uint32) {
	b.Store(r, b.Load(r)&^mask|v&mask)
}

// LoadBits returns the bits of the register selected by mask.
func LoadBits(b Bank, r Reg, mask uint32) uint32 {
	return b.Load(r) & mask
}

// Set sets the bits of mask.
func Set(b Bank, r Reg, mask uint32) {
	b.Store(r, b.Load(r)|mask)
}

// Clear clears the bits of mask.
func Clear(b Bank, r Reg, mask uint32) {
	b.Store(r, b.Load(r)&^mask)
}

// Field extracts width bits starting at shift.
func Field(v uint32, shift, width uint) uint32 {
	return v >> shift & (1<<width - 1)
}

// Memory is a Bank backed by plain storage. It stands in for hardware whose
// registers have no side effects, such as pin-mux and clock-gate frames.
type Memory struct {
	name string
	regs Map
	vals map[Reg]uint32
}

// NewMemory creates a Memory bank exposing the registers of m.
func NewMemory(name string, m Map) *Memory {
	return &Memory{
		name: name,
		regs: m,
		vals: make(map[Reg]uint32, len(m)),
	}
}

// Name returns the name of the bank.
func (b *Memory) Name() string {
	return b.name
}

// Load reads a register.
func (b *Memory) Load(r Reg) uint32 {
	b.regs.mustContain(b.name, r)
	return b.vals[r]
}

// Store writes a register.
func (b *Memory) Store(r Reg, v uint32) {
	b.regs.mustContain(b.name, r)
	b.vals[r] = v
}

// RegionBank is a Bank over a device frame mapped into a shared region.
type RegionBank struct {
	name  string
	regs  Map
	frame []byte
}

// NewRegionBank maps the registers of m at offset base of region.
func NewRegionBank(
	name string,
	region *shm.Region,
	base int,
	m Map,
) (*RegionBank, error) {
	size := 0
	for _, r := range m.Regs() {
		if r%4 != 0 {
			return nil, fmt.Errorf("%s: register 0x%x is not aligned", name, r)
		}
		size = int(r) + 4
	}

	frame, err := region.Slice(base, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &RegionBank{name: name, regs: m, frame: frame}, nil
}

// Name returns the name of the bank.
func (b *RegionBank) Name() string {
	return b.name
}

func (b *RegionBank) word(r Reg) *uint32 {
	b.regs.mustContain(b.name, r)
	return (*uint32)(unsafe.Pointer(&b.frame[r]))
}

// Load reads a register.
func (b *RegionBank) Load(r Reg) uint32 {
	return atomic.LoadUint32(b.word(r))
}

// Store writes a register.
func (b *RegionBank) Store(r Reg, v uint32) {
	atomic.StoreUint32(b.word(r), v)
}

// Bytes returns the little-endian image of the frame.
func (b *RegionBank) Bytes() []byte {
	out := make([]byte, len(b.frame))
	for _, r := range b.regs.Regs() {
		binary.LittleEndian.PutUint32(out[r:], b.Load(r))
	}

	return out
}
