// Package shm provides the shared memory regions that protection domains use
// to exchange buffers.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PageSize is the alignment of every region.
const PageSize = 4096

// Region is a contiguous shared byte range. Both ends of a transport see the
// same bytes at the same offsets.
type Region struct {
	name   string
	data   []byte
	mapped bool
}

// RoundUp rounds size up to a whole number of pages.
func RoundUp(size int) int {
	return (size + PageSize - 1) / PageSize * PageSize
}

// New allocates a zeroed, heap-backed region.
func New(name string, size int) *Region {
	if size <= 0 {
		panic("region size must be positive")
	}

	return &Region{
		name: name,
		data: make([]byte, RoundUp(size)),
	}
}

// Open maps a file-backed region, typically under /dev/shm, so that separate
// processes can share it. The file is created and sized if necessary.
func Open(path string, size int) (*Region, error) {
	size = RoundUp(size)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open shared memory %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("size shared memory %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map shared memory %s: %w", path, err)
	}

	return &Region{name: path, data: data, mapped: true}, nil
}

// Name returns the name of the region.
func (r *Region) Name() string {
	return r.name
}

// Len returns the size of the region in bytes.
func (r *Region) Len() int {
	return len(r.data)
}

// Bytes returns the whole region.
func (r *Region) Bytes() []byte {
	return r.data
}

// Slice returns length bytes starting at offset.
func (r *Region) Slice(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(r.data) {
		return nil, fmt.Errorf("range [%d, %d) outside region %s of %d bytes",
			offset, offset+length, r.name, len(r.data))
	}

	return r.data[offset : offset+length : offset+length], nil
}

// Close unmaps a file-backed region. It is a no-op for heap regions.
func (r *Region) Close() error {
	if !r.mapped {
		return nil
	}

	r.mapped = false
	data := r.data
	r.data = nil

	return unix.Munmap(data)
}
