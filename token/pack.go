package token

import (
	"fmt"

	"github.com/sarchlab/i2cmux/i2c"
)

// Geometry describes the token-list engine of a controller.
type Geometry struct {
	TokenSlots int
	WriteSlots int
	ReadSlots  int
}

// Table maps logical tokens to the controller's 4-bit opcodes. Tokens missing
// from the table cannot be sent to the controller.
type Table map[Token]uint8

// IdentityTable maps every token to its own value.
func IdentityTable() Table {
	t := make(Table, NumTokens)
	for tk := Token(0); tk < NumTokens; tk++ {
		t[tk] = uint8(tk)
	}

	return t
}

// Batch is the part of a stream that fits into the controller registers at
// once.
type Batch struct {
	// TokenList holds eight 4-bit slots per word, slot 0 in the low nibble.
	TokenList []uint32

	// WriteData holds four bytes per word, the first byte in the low byte.
	WriteData []uint32

	// Slots records the logical token loaded in each used slot.
	Slots []Token

	// Reads is the number of bytes the controller will read.
	Reads int

	// Consumed is the number of stream bytes this batch covers.
	Consumed int

	// Done is true if nothing of the stream is left after this batch.
	Done bool
}

// Packer splits a stream into batches.
type Packer struct {
	scanner

	geometry Geometry
	table    Table
}

// NewPacker creates a Packer positioned at the start of the stream.
func NewPacker(stream []byte, g Geometry, table Table) *Packer {
	if g.TokenSlots <= 0 || g.WriteSlots < 0 || g.ReadSlots < 0 {
		panic("invalid token geometry")
	}

	return &Packer{
		scanner:  scanner{stream: stream},
		geometry: g,
		table:    table,
	}
}

// Offset returns the position of the next unpacked stream byte.
func (p *Packer) Offset() int {
	return p.pos
}

// Remaining returns the number of stream bytes not packed yet.
func (p *Packer) Remaining() int {
	return len(p.stream) - p.pos
}

// Seek skips the first offset bytes of the stream, keeping track of the bus
// direction.
func (p *Packer) Seek(offset int) error {
	for p.pos < offset && !p.done() {
		if _, err := p.next(); err != nil {
			return err
		}
	}

	return nil
}

// Next packs the next batch. Unused slots are filled with the END opcode.
func (p *Packer) Next() (Batch, error) {
	b := Batch{
		TokenList: make([]uint32, (p.geometry.TokenSlots+7)/8),
		WriteData: make([]uint32, (p.geometry.WriteSlots+3)/4),
	}

	start := p.pos
	writes := 0

	for len(b.Slots) < p.geometry.TokenSlots && !p.done() {
		tk, err := p.peek()
		if err != nil {
			return Batch{}, err
		}

		code, ok := p.table[tk]
		if !ok {
			return Batch{}, fmt.Errorf("%w: %s has no opcode",
				i2c.ErrInvalidToken, tk)
		}

		if tk.IsData() && p.writing && writes == p.geometry.WriteSlots {
			break
		}

		if tk.IsData() && !p.writing && b.Reads == p.geometry.ReadSlots {
			break
		}

		op, err := p.next()
		if err != nil {
			return Batch{}, err
		}

		switch {
		case op.HasByte:
			b.WriteData[writes/4] |= uint32(op.Byte) << (8 * (writes % 4))
			writes++
		case tk.IsData():
			b.Reads++
		}

		b.setSlot(len(b.Slots), code)
		b.Slots = append(b.Slots, tk)

		if tk == End {
			p.pos = len(p.stream)
		}
	}

	if len(b.Slots) == 0 && !p.done() {
		return Batch{}, fmt.Errorf("%w: geometry cannot hold token at offset %d",
			i2c.ErrInvalidToken, p.pos)
	}

	endCode := p.table[End]
	for i := len(b.Slots); i < p.geometry.TokenSlots; i++ {
		b.setSlot(i, endCode)
	}

	b.Consumed = p.pos - start
	b.Done = p.done()

	return b, nil
}

func (b *Batch) setSlot(i int, code uint8) {
	if code > 0xF {
		panic("token opcode does not fit in 4 bits")
	}

	b.TokenList[i/8] &^= 0xF << (4 * (i % 8))
	b.TokenList[i/8] |= uint32(code) << (4 * (i % 8))
}

// Pack packs the batch that starts offset bytes into the stream.
func Pack(stream []byte, offset int, g Geometry, table Table) (Batch, error) {
	p := NewPacker(stream, g, table)
	if err := p.Seek(offset); err != nil {
		return Batch{}, err
	}

	return p.Next()
}
