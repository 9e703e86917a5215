package region

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tagalloc/memutils"
)

// SliceProvider is a Provider backed by an ordinary Go byte slice. Growth may move the backing
// array, so only offsets into the region remain stable across calls to Grow.
type SliceProvider struct {
	buf     []byte
	maxSize int
}

var _ Provider = &SliceProvider{}

// NewSliceProvider creates a SliceProvider that will refuse to grow beyond maxSize bytes
func NewSliceProvider(maxSize int) (*SliceProvider, error) {
	if maxSize <= 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidOption, "slice provider max size is %d", maxSize)
	}

	return &SliceProvider{
		maxSize: maxSize,
	}, nil
}

// Grow extends the slice by n zeroed bytes
func (p *SliceProvider) Grow(n int) (int, error) {
	if n < 0 {
		return 0, errors.Newf("cannot grow region by negative byte count %d", n)
	}

	oldSize := len(p.buf)
	if n > p.maxSize-oldSize {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "grow by %d bytes would exceed the %d byte limit (%d in use)", n, p.maxSize, oldSize)
	}

	if oldSize+n > cap(p.buf) {
		newCap := memutils.Min(memutils.Max(2*cap(p.buf), oldSize+n), p.maxSize)
		grown := make([]byte, oldSize, newCap)
		copy(grown, p.buf)
		p.buf = grown
	}

	// Bytes past len have never been handed out, so they are still zero
	p.buf = p.buf[:oldSize+n]

	return oldSize, nil
}

// Bytes returns the slice granted so far
func (p *SliceProvider) Bytes() []byte {
	return p.buf
}

// MaxSize returns the limit this provider was created with
func (p *SliceProvider) MaxSize() int {
	return p.maxSize
}
