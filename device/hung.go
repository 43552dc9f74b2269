package device

import "github.com/sarchlab/i2cmux/i2c"

// Hung is a target that acknowledges its address and then holds SCL low
// forever.
type Hung struct {
	targetBase
}

// NewHung creates a Hung target.
func NewHung(name string, addr i2c.Addr) *Hung {
	return &Hung{targetBase{name: name, addr: addr}}
}

// Address implements Target.
func (h *Hung) Address(bool) bool {
	return true
}

// WriteByte implements Target.
func (h *Hung) WriteByte(byte) bool {
	return true
}

// ReadByte implements Target.
func (h *Hung) ReadByte() byte {
	return 0xFF
}

// Stop implements Target.
func (h *Hung) Stop() {}

// Holding implements Target.
func (h *Hung) Holding() bool {
	return true
}
