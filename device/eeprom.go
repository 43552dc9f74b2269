package device

import "github.com/sarchlab/i2cmux/i2c"

// EEPROM models a 24C02-style serial EEPROM. The first byte of a write sets
// the word pointer. Further bytes are stored at the pointer, which wraps
// inside the current page. Reads continue from the pointer and wrap around
// the whole array.
type EEPROM struct {
	targetBase

	Mem      []byte
	PageSize int

	Writes uint64

	pointer    int
	hasPointer bool
	writing    bool
}

// NewEEPROM creates an EEPROM of size bytes with pages of pageSize bytes.
func NewEEPROM(name string, addr i2c.Addr, size, pageSize int) *EEPROM {
	if size <= 0 || size > 256 || pageSize <= 0 || size%pageSize != 0 {
		panic("invalid eeprom geometry")
	}

	e := &EEPROM{
		targetBase: targetBase{name: name, addr: addr},
		Mem:        make([]byte, size),
		PageSize:   pageSize,
	}

	for i := range e.Mem {
		e.Mem[i] = 0xFF
	}

	return e
}

// Pointer returns the current word address.
func (e *EEPROM) Pointer() int {
	return e.pointer
}

// Address implements Target.
func (e *EEPROM) Address(read bool) bool {
	e.writing = !read
	e.hasPointer = false

	return true
}

// WriteByte implements Target.
func (e *EEPROM) WriteByte(b byte) bool {
	if !e.writing {
		return false
	}

	if !e.hasPointer {
		e.pointer = int(b) % len(e.Mem)
		e.hasPointer = true

		return true
	}

	e.Mem[e.pointer] = b
	e.Writes++

	page := e.pointer - e.pointer%e.PageSize
	e.pointer = page + (e.pointer+1)%e.PageSize

	return true
}

// ReadByte implements Target.
func (e *EEPROM) ReadByte() byte {
	b := e.Mem[e.pointer]
	e.pointer = (e.pointer + 1) % len(e.Mem)

	return b
}

// Stop implements Target.
func (e *EEPROM) Stop() {
	e.writing = false
	e.hasPointer = false
}
