package metadata

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/tagalloc/memutils"
	"github.com/vkngwrapper/tagalloc/memutils/region"
)

const (
	// WordSize is the size of a boundary tag and of a free list link
	WordSize = region.WordSize
	// Alignment is the alignment of every block size and every payload offset
	Alignment = 2 * WordSize
	// Overhead is the number of bytes each block spends on its header and footer
	Overhead = 2 * WordSize
	// MinBlockSize is the smallest block that can hold a header, a footer and the two free
	// list links
	MinBlockSize = Overhead + 2*WordSize
	// PrologueSize is the size of the permanently allocated block at the front of the heap
	PrologueSize = Overhead
	// DefaultChunkSize is the number of bytes the heap grows by when no free block fits
	DefaultChunkSize = 1 << 12

	allocatedBit uint64 = 0x1
	flagMask     uint64 = Alignment - 1
)

// Tag is the decoded form of a boundary tag: the total size of a block, tags included, and
// whether the block is allocated
type Tag struct {
	size      int
	allocated bool
}

// NewTag creates a Tag, returning an error if size is negative or not a multiple of Alignment
func NewTag(size int, allocated bool) (Tag, error) {
	if size < 0 || !memutils.IsAligned(size, Alignment) {
		return Tag{}, errors.Errorf("block size %d is not a non-negative multiple of %d", size, Alignment)
	}

	return Tag{size: size, allocated: allocated}, nil
}

func mustTag(size int, allocated bool) Tag {
	tag, err := NewTag(size, allocated)
	if err != nil {
		panic(err)
	}
	return tag
}

// DecodeTag unpacks a boundary tag word. The flag bits are masked off before the size is read.
func DecodeTag(word uint64) Tag {
	return Tag{
		size:      int(word &^ flagMask),
		allocated: word&allocatedBit != 0,
	}
}

// Encode packs the tag into a single word
func (t Tag) Encode() uint64 {
	word := uint64(t.size)
	if t.allocated {
		word |= allocatedBit
	}
	return word
}

func (t Tag) Size() int { return t.size }

func (t Tag) Allocated() bool { return t.allocated }

func (t Tag) String() string {
	state := 'f'
	if t.allocated {
		state = 'a'
	}
	return fmt.Sprintf("[%d:%c]", t.size, state)
}
