package transport

import (
	"fmt"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/shm"
)

// Config sets the geometry of one transport.
type Config struct {
	// BufSize is the size of every pool buffer.
	BufSize int

	// BufCount is the number of buffers per direction. It must be a power of
	// two.
	BufCount int
}

// DefaultConfig returns 512 buffers of 512 bytes in each direction.
func DefaultConfig() Config {
	return Config{
		BufSize:  i2c.DefaultBufSize,
		BufCount: i2c.DefaultBufCount,
	}
}

// Validate checks that the geometry can be laid out.
func (c Config) Validate() error {
	if c.BufSize <= i2c.RetData || c.BufSize > 0xFFFF {
		return fmt.Errorf("buffer size %d out of range", c.BufSize)
	}

	if c.BufCount <= 0 || c.BufCount&(c.BufCount-1) != 0 {
		return fmt.Errorf("buffer count %d is not a power of two", c.BufCount)
	}

	return nil
}

// MaxRequest returns the largest token stream a request buffer can carry.
func (c Config) MaxRequest() int {
	return c.BufSize - i2c.ReqTokens
}

// Layout gives the byte offsets of the parts of a transport region.
type Layout struct {
	ReqFree int
	ReqUsed int
	RetFree int
	RetUsed int
	Pool    int
	Size    int

	SlabSize int
	PoolSize int
}

// Layout computes where each ring and the pool live in the region. Both ends
// derive the same layout from the same Config.
func (c Config) Layout() Layout {
	slab := ringbuf.SlabSize(c.BufCount)
	pool := 2 * c.BufCount * c.BufSize

	return Layout{
		ReqFree:  0,
		ReqUsed:  slab,
		RetFree:  2 * slab,
		RetUsed:  3 * slab,
		Pool:     4 * slab,
		Size:     shm.RoundUp(4*slab + pool),
		SlabSize: slab,
		PoolSize: pool,
	}
}

// RegionSize returns the size of the shared region a transport needs.
func RegionSize(c Config) int {
	return c.Layout().Size
}
