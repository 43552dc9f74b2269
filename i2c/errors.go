package i2c

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrTransportFull     = errors.New("transport full")
	ErrTransportEmpty    = errors.New("transport empty")
	ErrOversizedRequest  = errors.New("request does not fit in one buffer")
	ErrEmptyPayload      = errors.New("payload is empty")
	ErrDoubleRelease     = errors.New("buffer is not held by this end")
	ErrCorruptDescriptor = errors.New("ring descriptor is out of range")
)

// Protocol and security errors.
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrAddressOutOfRange = errors.New("address out of range")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrAddressNotOwned   = errors.New("address not owned by client")
	ErrAlreadyClaimed    = errors.New("address already claimed")
	ErrNotOwner          = errors.New("client does not own address")
	ErrInvalidClient     = errors.New("invalid client")
	ErrDriverBusy        = errors.New("driver transport busy")
	ErrInvalidRequest    = errors.New("invalid request")
)

// Bus errors, reported to clients through the return buffer.
var (
	ErrNack           = errors.New("target did not acknowledge")
	ErrNoReadPossible = errors.New("no read possible")
	ErrTimeout        = errors.New("bus timeout")
)

// NackError reports the token slot at which the target stopped
// acknowledging.
type NackError struct {
	Token uint8
}

func (e *NackError) Error() string {
	return fmt.Sprintf("%s at token %d", ErrNack, e.Token)
}

// Unwrap allows errors.Is(err, ErrNack).
func (e *NackError) Unwrap() error {
	return ErrNack
}
