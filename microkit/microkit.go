// Package microkit models the primitives that a microkernel offers to
// protection domains (PDs): payload-free notifications over channels,
// synchronous protected procedure calls (PPCs), and interrupt delivery.
//
// PDs are written against the Kernel interface. A System implements it on
// top of a sim.Engine so that every PD runs single threaded and to
// completion.
package microkit

import (
	"errors"
	"fmt"

	"github.com/sarchlab/i2cmux/sim"
)

// Channel is a PD-local channel number.
type Channel uint32

// MaxChannels is the number of channels a PD can have.
const MaxChannels = 63

// Message is the payload of a protected procedure call.
type Message struct {
	Label uint64
	MR    []uint64
}

// NewMessage creates a message from a label and message registers.
func NewMessage(label uint64, mrs ...uint64) Message {
	return Message{Label: label, MR: mrs}
}

// Get returns message register i, or 0 if it was not set.
func (m Message) Get(i int) uint64 {
	if i < 0 || i >= len(m.MR) {
		return 0
	}

	return m.MR[i]
}

// Kernel is the view of the microkernel a PD holds.
type Kernel interface {
	// Notify signals the PD at the other end of ch. Notifications carry no
	// payload and coalesce until delivered.
	Notify(ch Channel)

	// PPCall calls the PD at the other end of ch and waits for its reply.
	PPCall(ch Channel, msg Message) (Message, error)

	// IRQAck re-enables the interrupt that arrived on ch.
	IRQAck(ch Channel)
}

// PD is a protection domain.
type PD interface {
	sim.Named

	// Notified is invoked once for every channel that was signaled.
	Notified(ch Channel)
}

// ProtectedPD is a PD that accepts protected procedure calls.
type ProtectedPD interface {
	PD

	Protected(ch Channel, msg Message) Message
}

// Initializer is a PD that wants to run once when the system starts.
type Initializer interface {
	Init()
}

// Errors reported by protected calls.
var (
	ErrPDBusy       = errors.New("callee is running")
	ErrNoChannel    = errors.New("channel not connected")
	ErrNotProtected = errors.New("callee does not accept protected calls")
)

// CallError reports a failed protected call.
type CallError struct {
	Caller  string
	Channel Channel
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: ppcall on channel %d: %s", e.Caller, e.Channel, e.Err)
}

// Unwrap returns the cause.
func (e *CallError) Unwrap() error {
	return e.Err
}
