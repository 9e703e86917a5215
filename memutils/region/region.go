package region

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// WordSize is the size in bytes of a word in the region
const WordSize = 8

// Region is a contiguous, append-only byte range obtained from a Provider. All addressing is by
// byte offset from the start of the region.
type Region struct {
	provider Provider
	data     []byte
	// broken is set once the provider grants a range the region cannot use
	broken error
}

// New creates an empty region over the provided Provider. The provider must not have granted
// any bytes yet.
func New(provider Provider) (*Region, error) {
	if provider == nil {
		return nil, errors.New("region requires a provider")
	}
	if len(provider.Bytes()) != 0 {
		return nil, errors.Newf("provider has already granted %d bytes", len(provider.Bytes()))
	}

	return &Region{provider: provider}, nil
}

// Grow requests n more bytes from the provider and returns the offset of the first new byte.
// If the provider fails, the region is unchanged.
//
// A provider that grants a range which does not continue the region is faulty: it has already
// grown, but the region keeps its previous extent and can no longer track the provider. Every
// later call to Grow returns the same error without consulting the provider. The existing
// bytes stay readable.
func (r *Region) Grow(n int) (int, error) {
	if r.broken != nil {
		return 0, r.broken
	}

	offset, err := r.provider.Grow(n)
	if err != nil {
		return 0, err
	}

	data := r.provider.Bytes()
	if offset != len(r.data) || len(data) != offset+n {
		r.broken = errors.Newf("provider granted a non-contiguous range: expected offset %d and extent %d, got offset %d and extent %d",
			len(r.data), len(r.data)+n, offset, len(data))
		return 0, r.broken
	}

	r.data = data
	return offset, nil
}

// Extent returns the number of bytes in the region
func (r *Region) Extent() int {
	return len(r.data)
}

// Word reads the little-endian word at offset
func (r *Region) Word(offset int) uint64 {
	return binary.LittleEndian.Uint64(r.data[offset : offset+WordSize])
}

// PutWord writes the little-endian word value at offset
func (r *Region) PutWord(offset int, value uint64) {
	binary.LittleEndian.PutUint64(r.data[offset:offset+WordSize], value)
}

// Slice returns the n bytes starting at offset. The slice aliases the region and is only valid
// until the next call to Grow.
func (r *Region) Slice(offset, n int) []byte {
	return r.data[offset : offset+n : offset+n]
}

// Bytes returns the entire region. The slice is only valid until the next call to Grow.
func (r *Region) Bytes() []byte {
	return r.data
}
