// Package i2c defines the types shared by every component of the I2C
// subsystem: bus addresses, client identities, the fixed layouts of request
// and return buffers, and the error taxonomy carried back to clients.
package i2c

import "fmt"

// Addr is a 7-bit I2C target address.
type Addr uint8

// MaxAddr is the largest valid 7-bit address.
const MaxAddr Addr = 0x7F

// NumAddrs is the number of entries in an address-indexed table.
const NumAddrs = int(MaxAddr) + 1

// Valid returns true if the address fits in 7 bits.
func (a Addr) Valid() bool {
	return a <= MaxAddr
}

func (a Addr) String() string {
	return fmt.Sprintf("0x%02x", uint8(a))
}

// ClientID identifies a client protection domain. The broker assigns it from
// the channel a request arrived on, never from the request itself.
type ClientID uint8

// Request buffer layout.
const (
	ReqClient = 0
	ReqAddr   = 1
	ReqTokens = 2
)

// Return buffer layout.
const (
	RetClient   = 0
	RetAddr     = 1
	RetErr      = 2
	RetErrToken = 3
	RetData     = 4
)

// Default pool geometry.
const (
	DefaultBufSize  = 512
	DefaultBufCount = 512
)

// ErrorCode is the status byte written into a return buffer.
type ErrorCode uint8

// Error codes written by the driver.
const (
	OK ErrorCode = iota
	Timeout
	Nack
	NoReadPossible
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case Timeout:
		return "timeout"
	case Nack:
		return "nack"
	case NoReadPossible:
		return "no-read"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint8(c))
	}
}

// Err converts a status byte and its error token into a Go error. It returns
// nil for OK.
func (c ErrorCode) Err(errToken uint8) error {
	switch c {
	case OK:
		return nil
	case Timeout:
		return ErrTimeout
	case Nack:
		return &NackError{Token: errToken}
	case NoReadPossible:
		return fmt.Errorf("%w at token %d", ErrNoReadPossible, errToken)
	default:
		return fmt.Errorf("unknown error code %d", uint8(c))
	}
}
