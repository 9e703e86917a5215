//go:build unix

package region

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tagalloc/memutils"
	"golang.org/x/sys/unix"
)

// MmapProvider reserves a fixed span of anonymous virtual memory up front and hands it out
// through Grow. Pages are committed by the kernel on first touch, and payload addresses never
// move because the mapping is never remapped.
type MmapProvider struct {
	mapping []byte
	brk     int
}

var _ Provider = &MmapProvider{}

// NewMmapProvider maps maxSize bytes (rounded up to the page size) of private anonymous memory
func NewMmapProvider(maxSize int) (*MmapProvider, error) {
	if maxSize <= 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidOption, "mmap provider max size is %d", maxSize)
	}

	size := memutils.AlignUp(maxSize, unix.Getpagesize())
	mapping, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reserve %d bytes", size)
	}

	return &MmapProvider{mapping: mapping}, nil
}

// Grow advances the break by n bytes
func (p *MmapProvider) Grow(n int) (int, error) {
	if p.mapping == nil {
		return 0, errors.New("mmap provider has been closed")
	}
	if n < 0 {
		return 0, errors.Newf("cannot grow region by negative byte count %d", n)
	}

	oldBrk := p.brk
	if n > len(p.mapping)-oldBrk {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "grow by %d bytes would exceed the %d byte mapping (%d in use)", n, len(p.mapping), oldBrk)
	}

	p.brk += n
	return oldBrk, nil
}

// Bytes returns the granted part of the mapping
func (p *MmapProvider) Bytes() []byte {
	return p.mapping[:p.brk]
}

// MaxSize returns the size of the reserved mapping
func (p *MmapProvider) MaxSize() int {
	return len(p.mapping)
}

// Close unmaps the reserved memory. Every slice previously returned from Bytes becomes invalid.
func (p *MmapProvider) Close() error {
	if p.mapping == nil {
		return nil
	}

	err := unix.Munmap(p.mapping)
	p.mapping = nil
	p.brk = 0
	return err
}
