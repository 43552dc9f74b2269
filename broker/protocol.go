package broker

import (
	"errors"
	"fmt"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
)

// Request types carried in MR0 of a protected call.
const (
	ReqClaim   uint64 = 1
	ReqRelease uint64 = 2
)

// Message registers of a protected call.
const (
	MRType   = 0
	MRAddr   = 1
	MRClient = 2
)

// Status is the word the broker answers a protected call with.
type Status int64

// Statuses of a protected call.
const (
	StatusOK             Status = 0
	StatusAlreadyClaimed Status = -1
	StatusNotOwner       Status = -2
	StatusInvalidAddress Status = -3
	StatusInvalidRequest Status = -4
	StatusInvalidClient  Status = -5
)

var statusErrs = map[Status]error{
	StatusAlreadyClaimed: i2c.ErrAlreadyClaimed,
	StatusNotOwner:       i2c.ErrNotOwner,
	StatusInvalidAddress: i2c.ErrInvalidAddress,
	StatusInvalidRequest: i2c.ErrInvalidRequest,
	StatusInvalidClient:  i2c.ErrInvalidClient,
}

// Err converts the status into an error. It returns nil for StatusOK.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}

	if err, ok := statusErrs[s]; ok {
		return err
	}

	return fmt.Errorf("unknown broker status %d", int64(s))
}

// StatusOf converts an error returned by the security table into a status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}

	for s, target := range statusErrs {
		if errors.Is(err, target) {
			return s
		}
	}

	return StatusInvalidRequest
}

// ClaimMessage builds a claim call.
func ClaimMessage(addr i2c.Addr, client i2c.ClientID) microkit.Message {
	return microkit.NewMessage(0, ReqClaim, uint64(addr), uint64(client))
}

// ReleaseMessage builds a release call.
func ReleaseMessage(addr i2c.Addr, client i2c.ClientID) microkit.Message {
	return microkit.NewMessage(0, ReqRelease, uint64(addr), uint64(client))
}

// StatusMessage builds the reply of a call.
func StatusMessage(s Status) microkit.Message {
	return microkit.NewMessage(0, uint64(s))
}

// ParseStatus reads the status out of a reply.
func ParseStatus(msg microkit.Message) Status {
	return Status(int64(msg.Get(0)))
}
