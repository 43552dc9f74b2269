package broker

import (
	"fmt"

	"github.com/sarchlab/i2cmux/i2c"
)

// Unclaimed marks an address that no client owns.
const Unclaimed = -1

// Security maps every bus address to the client that owns it.
type Security struct {
	owners [i2c.NumAddrs]int
}

// NewSecurity creates a table with every address unclaimed.
func NewSecurity() *Security {
	s := new(Security)
	for i := range s.owners {
		s.owners[i] = Unclaimed
	}

	return s
}

// Owner returns the client that owns addr. It returns false if addr is
// unclaimed or invalid.
func (s *Security) Owner(addr i2c.Addr) (i2c.ClientID, bool) {
	if !addr.Valid() || s.owners[addr] == Unclaimed {
		return 0, false
	}

	return i2c.ClientID(s.owners[addr]), true
}

// Owns returns true if client owns addr.
func (s *Security) Owns(client i2c.ClientID, addr i2c.Addr) bool {
	owner, ok := s.Owner(addr)
	return ok && owner == client
}

// Claim gives addr to client. Claiming an address the client already owns
// succeeds.
func (s *Security) Claim(addr i2c.Addr, client i2c.ClientID) error {
	if !addr.Valid() {
		return fmt.Errorf("%w: %s", i2c.ErrInvalidAddress, addr)
	}

	owner := s.owners[addr]
	if owner != Unclaimed && owner != int(client) {
		return fmt.Errorf("%w: %s by client %d", i2c.ErrAlreadyClaimed, addr, owner)
	}

	s.owners[addr] = int(client)

	return nil
}

// Release gives up the claim of client on addr.
func (s *Security) Release(addr i2c.Addr, client i2c.ClientID) error {
	if !addr.Valid() {
		return fmt.Errorf("%w: %s", i2c.ErrInvalidAddress, addr)
	}

	if s.owners[addr] != int(client) {
		return fmt.Errorf("%w: %s", i2c.ErrNotOwner, addr)
	}

	s.owners[addr] = Unclaimed

	return nil
}

// Revoke releases every address owned by client and returns how many there
// were.
func (s *Security) Revoke(client i2c.ClientID) int {
	n := 0
	for i, owner := range s.owners {
		if owner == int(client) {
			s.owners[i] = Unclaimed
			n++
		}
	}

	return n
}

// Claims returns the owner of every claimed address.
func (s *Security) Claims() map[i2c.Addr]i2c.ClientID {
	claims := make(map[i2c.Addr]i2c.ClientID)
	for i, owner := range s.owners {
		if owner != Unclaimed {
			claims[i2c.Addr(i)] = i2c.ClientID(owner)
		}
	}

	return claims
}
