// Package token implements the logical I2C token language used inside
// request buffers.
//
// A request carries a token stream rather than raw bytes. Each token occupies
// one byte. Data tokens that belong to a write are followed by the byte to be
// written, while data tokens that belong to a read stand alone and each
// produce one byte in the return buffer.
package token

import (
	"fmt"

	"github.com/sarchlab/i2cmux/i2c"
)

// Token is a logical bus operation.
type Token uint8

// Logical tokens.
const (
	End Token = iota
	Start
	AddrW
	AddrR
	Data
	DataEnd
	Stop
)

// NumTokens is the number of defined tokens.
const NumTokens = 7

// Valid returns true if t is a defined token.
func (t Token) Valid() bool {
	return t < NumTokens
}

// IsData returns true for tokens that move one byte on the bus.
func (t Token) IsData() bool {
	return t == Data || t == DataEnd
}

func (t Token) String() string {
	switch t {
	case End:
		return "END"
	case Start:
		return "START"
	case AddrW:
		return "ADDRW"
	case AddrR:
		return "ADDRR"
	case Data:
		return "DATA"
	case DataEnd:
		return "DATA_END"
	case Stop:
		return "STOP"
	default:
		return fmt.Sprintf("Token(0x%x)", uint8(t))
	}
}

// Mode selects the shape of a composed transaction.
type Mode int

// Transaction modes. The continued modes end with an END token so that a
// following request continues the same bus transaction.
const (
	Write Mode = iota
	WriteContinued
	Read
	ReadContinued
)

// IsRead returns true for read modes.
func (m Mode) IsRead() bool {
	return m == Read || m == ReadContinued
}

// Continued returns true for the modes that append an END token.
func (m Mode) Continued() bool {
	return m == WriteContinued || m == ReadContinued
}

func (m Mode) String() string {
	switch m {
	case Write:
		return "write"
	case WriteContinued:
		return "write-continued"
	case Read:
		return "read"
	case ReadContinued:
		return "read-continued"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MaxPayload returns the largest payload that can be composed into room
// bytes of token space. Two bytes are always reserved for the address token
// and a trailing END. Write tokens interleave their data byte, so writes fit
// half as many bytes as reads.
func MaxPayload(m Mode, room int) int {
	avail := room - 2
	if avail <= 0 {
		return 0
	}

	if m.IsRead() {
		return avail
	}

	return avail / 2
}

// Len returns the length of the token stream that Compose produces for an
// n-byte payload.
func Len(m Mode, n int) int {
	l := 1 + n
	if !m.IsRead() {
		l += n
	}

	if m.Continued() {
		l++
	}

	return l
}

// Compose writes the token stream for one transaction into dst and returns
// the number of bytes used.
//
// For write modes, data holds the bytes to write. For read modes, only the
// length of data is used, giving the number of bytes to read. START and STOP
// are not emitted; the controller frames the transaction itself.
func Compose(dst []byte, m Mode, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, i2c.ErrEmptyPayload
	}

	if len(data) > MaxPayload(m, len(dst)) {
		return 0, fmt.Errorf("%w: %d bytes in %s mode",
			i2c.ErrOversizedRequest, len(data), m)
	}

	n := 0
	if m.IsRead() {
		dst[n] = byte(AddrR)
		n++

		for i := range data {
			dst[n] = byte(dataToken(i, len(data)))
			n++
		}
	} else {
		dst[n] = byte(AddrW)
		n++

		for i, b := range data {
			dst[n] = byte(dataToken(i, len(data)))
			dst[n+1] = b
			n += 2
		}
	}

	if m.Continued() {
		dst[n] = byte(End)
		n++
	}

	return n, nil
}

func dataToken(i, n int) Token {
	if i == n-1 {
		return DataEnd
	}

	return Data
}

// Op is one decoded token, with the byte it carries for writes.
type Op struct {
	Token   Token
	Byte    byte
	HasByte bool
}

// Decode walks a stream into operations. Decoding stops after an END token.
func Decode(stream []byte) ([]Op, error) {
	var ops []Op

	s := scanner{stream: stream}
	for !s.done() {
		op, err := s.next()
		if err != nil {
			return ops, err
		}

		ops = append(ops, op)

		if op.Token == End {
			break
		}
	}

	return ops, nil
}

// Validate returns the first error Decode would report.
func Validate(stream []byte) error {
	_, err := Decode(stream)
	return err
}

// scanner tracks the bus direction so that data tokens can be told apart
// from the bytes that follow write tokens.
type scanner struct {
	stream    []byte
	pos       int
	writing   bool
	addressed bool
}

func (s *scanner) done() bool {
	return s.pos >= len(s.stream)
}

func (s *scanner) peek() (Token, error) {
	tk := Token(s.stream[s.pos])
	if !tk.Valid() {
		return tk, fmt.Errorf("%w 0x%02x at offset %d",
			i2c.ErrInvalidToken, s.stream[s.pos], s.pos)
	}

	if tk.IsData() && !s.addressed {
		return tk, fmt.Errorf("%w: %s before address at offset %d",
			i2c.ErrInvalidToken, tk, s.pos)
	}

	if tk.IsData() && s.writing && s.pos+1 >= len(s.stream) {
		return tk, fmt.Errorf("%w: %s without data byte at offset %d",
			i2c.ErrInvalidToken, tk, s.pos)
	}

	return tk, nil
}

func (s *scanner) next() (Op, error) {
	tk, err := s.peek()
	if err != nil {
		return Op{}, err
	}

	op := Op{Token: tk}

	switch tk {
	case AddrW:
		s.writing = true
		s.addressed = true
	case AddrR:
		s.writing = false
		s.addressed = true
	case Start, Stop:
		s.addressed = false
	case Data, DataEnd:
		if s.writing {
			op.Byte = s.stream[s.pos+1]
			op.HasByte = true
			s.pos++
		}
	}

	s.pos++

	return op, nil
}
