package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/tagalloc/memutils"
	"golang.org/x/exp/slog"
)

// HeapMetadata manages the blocks of a single growable heap region. It services allocation,
// free and reallocation requests, and allows the blocks to be enumerated and audited.
type HeapMetadata interface {
	// Init must be called before the HeapMetadata is used. It lays out whatever fixed structures
	// the implementation needs and performs the initial growth of the heap.
	Init() error
	// Extent returns the size in bytes of the heap region
	Extent() int
	// ChunkSize returns the minimum number of bytes the heap grows by when it must grow
	ChunkSize() int

	// Validate performs internal consistency checks on the metadata. These checks walk the entire
	// heap and should only be run for diagnostic purposes. When the implementation is functioning
	// correctly and the application has honored the allocation contract, it is not possible for
	// this method to return an error.
	Validate() error
	// AllocationCount returns the number of live allocations
	AllocationCount() int
	// FreeRegionsCount returns the number of free blocks. Adjacent free blocks are always merged,
	// so no two of them are physically adjacent.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes in the heap, tags included
	SumFreeSize() int
	// IsEmpty will return true if there are no live allocations
	IsEmpty() bool
	// Counters returns a snapshot of the implementation's operation counters
	Counters() Counters

	// VisitAllRegions will call the provided callback once for each block in the heap, in address
	// order, sentinels excluded. size is the full block size including tags.
	VisitAllRegions(handleBlock func(bp BlockPtr, size int, free bool) error) error
	// Tags returns the header and footer tags of the block at bp
	Tags(bp BlockPtr) (header Tag, footer Tag)

	// AddDetailedStatistics sums this heap's statistics into the provided memutils.DetailedStatistics
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this heap's statistics into the provided memutils.Statistics
	AddStatistics(stats *memutils.Statistics)
	// BlockJsonData populates a json object with summary information about this heap
	BlockJsonData(json jwriter.ObjectState)
	// PrintDetailedMap populates a json object with one entry per block
	PrintDetailedMap(json jwriter.ObjectState)
	// DebugLogAllAllocations calls logFunc once for each live allocation
	DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, bp BlockPtr, size int))

	// CheckCorruption verifies the anti-corruption markers written after each allocation. Markers
	// are only written when memutils is built with the debug_mem_utils tag.
	CheckCorruption() error

	// Alloc allocates a block with room for at least size payload bytes and returns its payload
	// offset. A non-positive size returns NullPtr and no error.
	Alloc(size int) (BlockPtr, error)
	// Free returns a block obtained from Alloc or Realloc to the heap
	Free(bp BlockPtr)
	// Realloc resizes an allocation, moving it if necessary
	Realloc(bp BlockPtr, size int) (BlockPtr, error)
	// PayloadSize returns the number of usable payload bytes at bp
	PayloadSize(bp BlockPtr) int
	// Payload returns the usable payload bytes at bp
	Payload(bp BlockPtr) []byte
}
