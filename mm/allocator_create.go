package mm

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/tagalloc/memutils"
	"github.com/vkngwrapper/tagalloc/memutils/metadata"
	"github.com/vkngwrapper/tagalloc/memutils/region"
	"github.com/vkngwrapper/tagalloc/mm/internal/utils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var allocatorCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	allocatorCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return allocatorCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocatorCreateInternallySynchronized guards every allocator operation with a mutex so that
	// the allocator may be shared between goroutines. Without it, the consumer must guarantee
	// the allocator is used from only one goroutine at a time.
	AllocatorCreateInternallySynchronized CreateFlags = 1 << iota
	// AllocatorCreateTrackAllocations keeps a registry of live allocations. Freeing or
	// reallocating a pointer the allocator did not hand out panics instead of corrupting the heap.
	AllocatorCreateTrackAllocations
)

func init() {
	AllocatorCreateInternallySynchronized.Register("AllocatorCreateInternallySynchronized")
	AllocatorCreateTrackAllocations.Register("AllocatorCreateTrackAllocations")
}

const (
	// DefaultMaxHeapSize is the limit of the provider created when CreateOptions.Provider is
	// nil and no MaxHeapSize is given. It is equal to 20Mb.
	DefaultMaxHeapSize int = 20 * 1024 * 1024
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// ChunkSize is the minimum number of bytes the heap grows by when no free block can satisfy
	// a request. It must be a positive multiple of 16. Defaults to 4096.
	ChunkSize int

	// Provider supplies the bytes of the heap. It must not have granted any bytes yet. If it is
	// nil, a region.SliceProvider limited to MaxHeapSize is used.
	Provider region.Provider

	// MaxHeapSize limits the default provider. It is ignored when Provider is set.
	MaxHeapSize int
}

// New creates a new Allocator and performs the initial growth of its heap
//
// logger - Receives debug records for each operation and error records for failed checks
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		return nil, errors.Wrap(memutils.ErrInvalidOption, "mm.New requires a logger")
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = metadata.DefaultChunkSize
	}

	provider := options.Provider
	if provider == nil {
		maxHeapSize := options.MaxHeapSize
		if maxHeapSize == 0 {
			maxHeapSize = DefaultMaxHeapSize
		}

		var err error
		provider, err = region.NewSliceProvider(maxHeapSize)
		if err != nil {
			return nil, err
		}
	}

	heapRegion, err := region.New(provider)
	if err != nil {
		return nil, err
	}

	md, err := metadata.NewExplicitListMetadata(heapRegion, chunkSize)
	if err != nil {
		return nil, err
	}

	err = md.Init()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize the heap")
	}

	allocator := &Allocator{
		mutex:       utils.OptionalMutex{UseMutex: options.Flags&AllocatorCreateInternallySynchronized != 0},
		logger:      logger,
		createFlags: options.Flags,
		provider:    provider,
		metadata:    md,
	}

	if options.Flags&AllocatorCreateTrackAllocations != 0 {
		allocator.liveAllocations = swiss.NewMap[Ptr, int](42)
	}

	logger.Debug("Allocator::New",
		slog.String("Flags", options.Flags.String()),
		slog.Int("ChunkSize", chunkSize),
		slog.Int("Extent", md.Extent()),
	)

	return allocator, nil
}
