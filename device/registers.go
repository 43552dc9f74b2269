package device

import "github.com/sarchlab/i2cmux/i2c"

// Registers models a sensor-like register file. A write starts with the
// register index; the following bytes are stored in consecutive registers.
// Reads return consecutive registers starting at the selected index.
// Registers marked read-only NACK writes.
type Registers struct {
	targetBase

	Regs     []byte
	ReadOnly map[int]bool

	index    int
	hasIndex bool
	writing  bool
}

// NewRegisters creates a register file with n registers.
func NewRegisters(name string, addr i2c.Addr, n int) *Registers {
	if n <= 0 || n > 256 {
		panic("invalid register count")
	}

	return &Registers{
		targetBase: targetBase{name: name, addr: addr},
		Regs:       make([]byte, n),
		ReadOnly:   make(map[int]bool),
	}
}

// Index returns the selected register.
func (r *Registers) Index() int {
	return r.index
}

// Address implements Target.
func (r *Registers) Address(read bool) bool {
	r.writing = !read
	r.hasIndex = false

	return true
}

// WriteByte implements Target.
func (r *Registers) WriteByte(b byte) bool {
	if !r.writing {
		return false
	}

	if !r.hasIndex {
		if int(b) >= len(r.Regs) {
			return false
		}

		r.index = int(b)
		r.hasIndex = true

		return true
	}

	if r.ReadOnly[r.index] {
		return false
	}

	r.Regs[r.index] = b
	r.index = (r.index + 1) % len(r.Regs)

	return true
}

// ReadByte implements Target.
func (r *Registers) ReadByte() byte {
	b := r.Regs[r.index]
	r.index = (r.index + 1) % len(r.Regs)

	return b
}

// Stop implements Target.
func (r *Registers) Stop() {
	r.writing = false
	r.hasIndex = false
}
