package metadata

import (
	"math"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/tagalloc/memutils"
	"github.com/vkngwrapper/tagalloc/memutils/region"
)

// Counters records how often each of the allocator's internal paths has been taken
type Counters struct {
	Allocations    int
	Frees          int
	Extensions     int
	ExtensionBytes int
	Splits         int
	// CoalesceCases counts coalesce calls by case: both neighbors allocated, next free,
	// previous free, both free
	CoalesceCases   [4]int
	ReallocInPlace  int
	ReallocAbsorbed int
	ReallocMoved    int
}

// ExplicitListMetadata manages a growable heap region as a sequence of boundary-tagged blocks.
// Free blocks are threaded onto a single LIFO list that is searched first-fit, placed blocks
// are split when the remainder can stand alone, and freed blocks are coalesced with both
// physical neighbors.
//
// The region layout is a padding word, a prologue block, the real blocks, and a zero-sized
// epilogue header in the final word. The sentinels are always allocated, so neighbor lookups
// never need to special-case the ends of the heap.
//
// ExplicitListMetadata is not safe for concurrent use.
type ExplicitListMetadata struct {
	r         *region.Region
	chunkSize int

	prologue    BlockPtr
	initialized bool
	allocCount  int

	freeList freeList
	counters Counters
}

var _ HeapMetadata = &ExplicitListMetadata{}

// NewExplicitListMetadata creates metadata over r, which must be empty. chunkSize is the
// minimum number of bytes to request from the provider when the heap must grow; it must be a
// positive multiple of Alignment. Init must be called before the metadata is used.
func NewExplicitListMetadata(r *region.Region, chunkSize int) (*ExplicitListMetadata, error) {
	if r == nil {
		return nil, errors.New("explicit list metadata requires a region")
	}

	err := memutils.CheckAligned(chunkSize, Alignment, "chunkSize")
	if err != nil {
		return nil, err
	}

	return &ExplicitListMetadata{
		r:         r,
		chunkSize: chunkSize,
		freeList:  freeList{r: r},
	}, nil
}

// Init lays out the padding word, the prologue and the epilogue, then grows the heap by one
// chunk to create the first free block. Any provider failure is returned.
func (m *ExplicitListMetadata) Init() error {
	if m.initialized {
		return errors.New("metadata has already been initialized")
	}

	base, err := m.r.Grow(4 * WordSize)
	if err != nil {
		return err
	}

	m.r.PutWord(base, 0)
	m.prologue = BlockPtr(base + 2*WordSize)
	m.setTags(m.prologue, mustTag(PrologueSize, true))
	m.setEpilogue(m.nextBlock(m.prologue))
	m.initialized = true

	_, err = m.extendHeap(m.chunkSize / WordSize)
	return err
}

// ChunkSize returns the minimum heap growth step in bytes
func (m *ExplicitListMetadata) ChunkSize() int {
	return m.chunkSize
}

// Extent returns the current size of the heap region in bytes
func (m *ExplicitListMetadata) Extent() int {
	return m.r.Extent()
}

// AllocationCount returns the number of live allocations
func (m *ExplicitListMetadata) AllocationCount() int {
	return m.allocCount
}

// FreeRegionsCount returns the number of blocks in the free list
func (m *ExplicitListMetadata) FreeRegionsCount() int {
	return m.freeList.count
}

// SumFreeSize returns the total size of all free blocks, tags included
func (m *ExplicitListMetadata) SumFreeSize() int {
	return m.freeList.size
}

// IsEmpty returns true if there are no live allocations
func (m *ExplicitListMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

// Counters returns a snapshot of the operation counters
func (m *ExplicitListMetadata) Counters() Counters {
	return m.counters
}

// AdjustedSize returns the block size used to satisfy a request for size payload bytes:
// MinBlockSize for requests that fit in a doubleword, otherwise size plus the tag overhead
// rounded up to Alignment.
func AdjustedSize(size int) (int, error) {
	if size <= 0 {
		return 0, errors.Errorf("invalid request size: %d", size)
	}
	if size > math.MaxInt-Overhead-Alignment {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "request of %d bytes cannot be represented", size)
	}

	if size <= Alignment {
		return MinBlockSize, nil
	}

	return memutils.AlignUp(size+Overhead, Alignment), nil
}

// requestBlockSize is AdjustedSize for a request that also carries the debug margin
func requestBlockSize(size int) (int, error) {
	if size > math.MaxInt-memutils.DebugMargin {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "request of %d bytes cannot be represented", size)
	}

	return AdjustedSize(size + memutils.DebugMargin)
}

// Alloc returns the payload of a newly allocated block with room for at least size bytes.
// A non-positive size is ignored and yields NullPtr with no error. If no free block fits and
// the heap cannot grow, an error wrapping memutils.ErrOutOfMemory is returned and the heap is
// unchanged.
func (m *ExplicitListMetadata) Alloc(size int) (BlockPtr, error) {
	if !m.initialized {
		return NullPtr, errors.New("metadata has not been initialized")
	}
	if size <= 0 {
		return NullPtr, nil
	}

	asize, err := requestBlockSize(size)
	if err != nil {
		return NullPtr, err
	}

	bp := m.findFit(asize)
	if bp == NullPtr {
		bp, err = m.extendHeap(memutils.Max(asize, m.chunkSize) / WordSize)
		if err != nil {
			return NullPtr, err
		}
	}

	m.place(bp, asize)
	m.writeDebugMargin(bp)
	m.allocCount++
	m.counters.Allocations++

	memutils.DebugValidate(m)

	return bp, nil
}

// Free returns the block to the free list, merging it with any free physical neighbors.
// bp must have been returned by Alloc or Realloc and not freed since; anything else corrupts
// the heap. Freeing NullPtr does nothing.
func (m *ExplicitListMetadata) Free(bp BlockPtr) {
	if bp == NullPtr {
		return
	}

	m.setTags(bp, mustTag(m.header(bp).Size(), false))
	m.allocCount--
	m.counters.Frees++
	m.coalesce(bp)

	memutils.DebugValidate(m)
}

// Realloc resizes the allocation at bp to hold at least size bytes, preserving its contents
// up to the smaller of the old and new sizes.
//
// A non-positive size frees bp and returns NullPtr. A NullPtr bp behaves like Alloc. If the
// block is already large enough it is returned unchanged; if the next physical block is free
// and the two together are large enough, the next block is absorbed in place. Otherwise the
// contents are moved to a new allocation and bp is freed. If that allocation fails, bp is left
// intact and the error is returned.
func (m *ExplicitListMetadata) Realloc(bp BlockPtr, size int) (BlockPtr, error) {
	if size <= 0 {
		m.Free(bp)
		return NullPtr, nil
	}
	if bp == NullPtr {
		return m.Alloc(size)
	}

	asize, err := requestBlockSize(size)
	if err != nil {
		return NullPtr, err
	}

	oldSize := m.header(bp).Size()
	if asize <= oldSize {
		m.counters.ReallocInPlace++
		return bp, nil
	}

	next := m.nextBlock(bp)
	nextTag := m.header(next)
	if !nextTag.Allocated() && oldSize+nextTag.Size() >= asize {
		m.freeList.remove(next, nextTag.Size())
		m.setTags(bp, mustTag(oldSize+nextTag.Size(), true))
		m.writeDebugMargin(bp)
		m.counters.ReallocAbsorbed++

		memutils.DebugValidate(m)
		return bp, nil
	}

	newBp, err := m.Alloc(size)
	if err != nil {
		return NullPtr, err
	}

	copy(m.Payload(newBp), m.Payload(bp))
	m.Free(bp)
	m.counters.ReallocMoved++

	return newBp, nil
}

// PayloadSize returns the number of bytes the application may use at bp
func (m *ExplicitListMetadata) PayloadSize(bp BlockPtr) int {
	return m.payloadCapacity(bp) - memutils.DebugMargin
}

// Payload returns the usable bytes of the allocation at bp. The slice aliases the heap region
// and is invalidated by any operation that grows the heap.
func (m *ExplicitListMetadata) Payload(bp BlockPtr) []byte {
	return m.r.Slice(int(bp), m.PayloadSize(bp))
}

// findFit returns the first block in free list order that can hold asize bytes
func (m *ExplicitListMetadata) findFit(asize int) BlockPtr {
	for bp := m.freeList.first(); bp != NullPtr; bp = m.freeList.next(bp) {
		if m.header(bp).Size() >= asize {
			return bp
		}
	}

	return NullPtr
}

// place allocates asize bytes at the start of the free block bp, splitting off the remainder
// as a new free block when it is at least MinBlockSize
func (m *ExplicitListMetadata) place(bp BlockPtr, asize int) {
	csize := m.header(bp).Size()
	m.freeList.remove(bp, csize)

	if csize-asize >= 2*Alignment {
		m.setTags(bp, mustTag(asize, true))

		remainder := m.nextBlock(bp)
		m.setTags(remainder, mustTag(csize-asize, false))
		m.counters.Splits++
		m.coalesce(remainder)
		return
	}

	m.setTags(bp, mustTag(csize, true))
}

// coalesce merges the free block bp with whichever physical neighbors are free and pushes the
// surviving block onto the free list. It returns the surviving block.
func (m *ExplicitListMetadata) coalesce(bp BlockPtr) BlockPtr {
	prev := m.prevBlock(bp)
	prevAlloc := prev == bp || m.prevFooter(bp).Allocated()
	next := m.nextBlock(bp)
	nextAlloc := m.header(next).Allocated()

	size := m.header(bp).Size()

	switch {
	case prevAlloc && nextAlloc:
		m.counters.CoalesceCases[0]++

	case prevAlloc && !nextAlloc:
		nextSize := m.header(next).Size()
		m.freeList.remove(next, nextSize)
		size += nextSize
		m.setTags(bp, mustTag(size, false))
		m.counters.CoalesceCases[1]++

	case !prevAlloc && nextAlloc:
		prevSize := m.header(prev).Size()
		m.freeList.remove(prev, prevSize)
		size += prevSize
		bp = prev
		m.setTags(bp, mustTag(size, false))
		m.counters.CoalesceCases[2]++

	default:
		prevSize := m.header(prev).Size()
		nextSize := m.header(next).Size()
		m.freeList.remove(prev, prevSize)
		m.freeList.remove(next, nextSize)
		size += prevSize + nextSize
		bp = prev
		m.setTags(bp, mustTag(size, false))
		m.counters.CoalesceCases[3]++
	}

	m.freeList.insert(bp, size)
	return bp
}

// extendHeap grows the heap by words words, rounded up to an even count to keep the heap
// aligned. The new bytes become a free block over the old epilogue, followed by a new
// epilogue, and that block is coalesced with a free block that may precede it.
func (m *ExplicitListMetadata) extendHeap(words int) (BlockPtr, error) {
	if words%2 != 0 {
		words++
	}
	size := words * WordSize

	offset, err := m.r.Grow(size)
	if err != nil {
		return NullPtr, err
	}

	bp := BlockPtr(offset)
	m.setTags(bp, mustTag(size, false))
	m.setEpilogue(m.nextBlock(bp))

	m.counters.Extensions++
	m.counters.ExtensionBytes += size

	return m.coalesce(bp), nil
}

func (m *ExplicitListMetadata) writeDebugMargin(bp BlockPtr) {
	if memutils.DebugMargin > 0 {
		memutils.WriteMagicValue(m.r.Bytes(), int(bp)+m.PayloadSize(bp))
	}
}

// CheckCorruption verifies the corruption-detection margin at the end of every allocated
// payload. Margins are only written when built with the debug_mem_utils tag; otherwise this
// always returns nil.
func (m *ExplicitListMetadata) CheckCorruption() error {
	if memutils.DebugMargin == 0 {
		return nil
	}

	return m.VisitAllRegions(func(bp BlockPtr, size int, free bool) error {
		if free {
			return nil
		}

		if !memutils.ValidateMagicValue(m.r.Bytes(), int(bp)+m.PayloadSize(bp)) {
			return errors.Errorf("memory corruption detected after the allocation at offset %d", bp)
		}
		return nil
	})
}
