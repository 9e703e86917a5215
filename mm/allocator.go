package mm

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/tagalloc/memutils/metadata"
	"github.com/vkngwrapper/tagalloc/memutils/region"
	"github.com/vkngwrapper/tagalloc/mm/internal/utils"
	"golang.org/x/exp/slog"
)

// Ptr is the offset of an allocation's payload within the allocator's heap
type Ptr = metadata.BlockPtr

// NullPtr is returned for ignored requests and is never the address of an allocation
const NullPtr = metadata.NullPtr

// Allocator is a general-purpose heap allocator over a single growable region. Allocations
// are identified by Ptr offsets, and their bytes are accessed through Bytes.
type Allocator struct {
	mutex       utils.OptionalMutex
	logger      *slog.Logger
	createFlags CreateFlags

	provider        region.Provider
	metadata        metadata.HeapMetadata
	liveAllocations *swiss.Map[Ptr, int]
}

// Allocate reserves at least size bytes and returns the offset of the payload, which is aligned
// to 16 bytes. A size of zero or less returns NullPtr and no error. If the heap cannot grow to
// satisfy the request, an error wrapping memutils.ErrOutOfMemory is returned.
func (a *Allocator) Allocate(size int) (Ptr, error) {
	a.logger.Debug("Allocator::Allocate", slog.Int("Size", size))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	p, err := a.metadata.Alloc(size)
	if err != nil {
		return NullPtr, err
	}

	a.track(p, size)
	return p, nil
}

// Free releases an allocation. p must have been returned by Allocate or Reallocate and not
// freed since. Freeing NullPtr does nothing.
func (a *Allocator) Free(p Ptr) {
	a.logger.Debug("Allocator::Free", slog.Int("Ptr", int(p)))

	if p == NullPtr {
		return
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.untrack(p)
	a.metadata.Free(p)
}

// Reallocate resizes an allocation, preserving its contents up to the smaller of the old and
// new sizes. The returned offset may differ from p, in which case p is no longer valid.
//
// A size of zero or less frees p and returns NullPtr. A NullPtr p behaves like Allocate. If the
// request cannot be satisfied, p is left intact and an error is returned.
func (a *Allocator) Reallocate(p Ptr, size int) (Ptr, error) {
	a.logger.Debug("Allocator::Reallocate", slog.Int("Ptr", int(p)), slog.Int("Size", size))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if p != NullPtr && a.liveAllocations != nil && !a.liveAllocations.Has(p) {
		panic(fmt.Sprintf("attempted to reallocate offset %d, which is not a live allocation", p))
	}

	newPtr, err := a.metadata.Realloc(p, size)
	if err != nil {
		return NullPtr, err
	}

	if p != NullPtr && a.liveAllocations != nil {
		a.liveAllocations.Delete(p)
	}
	a.track(newPtr, size)

	return newPtr, nil
}

func (a *Allocator) track(p Ptr, size int) {
	if p != NullPtr && a.liveAllocations != nil {
		a.liveAllocations.Put(p, size)
	}
}

func (a *Allocator) untrack(p Ptr) {
	if a.liveAllocations == nil {
		return
	}

	if !a.liveAllocations.Has(p) {
		panic(fmt.Sprintf("attempted to free offset %d, which is not a live allocation", p))
	}
	a.liveAllocations.Delete(p)
}

// Bytes returns the payload of the allocation at p. The slice aliases the heap and may be
// invalidated by any later call that grows the heap, so it should not be retained. NullPtr has
// no payload and returns nil.
func (a *Allocator) Bytes(p Ptr) []byte {
	if p == NullPtr {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.metadata.Payload(p)
}

// PayloadSize returns the number of usable bytes at p, which may exceed the requested size.
// NullPtr holds zero bytes.
func (a *Allocator) PayloadSize(p Ptr) int {
	if p == NullPtr {
		return 0
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.metadata.PayloadSize(p)
}

// AllocationCount returns the number of live allocations
func (a *Allocator) AllocationCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.liveAllocations != nil {
		return a.liveAllocations.Count()
	}
	return a.metadata.AllocationCount()
}

// Extent returns the current size of the heap region in bytes
func (a *Allocator) Extent() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.metadata.Extent()
}

// Counters returns a snapshot of the allocator's operation counters
func (a *Allocator) Counters() metadata.Counters {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.metadata.Counters()
}

// Flags returns the flags the allocator was created with
func (a *Allocator) Flags() CreateFlags {
	return a.createFlags
}

// Validate audits the heap and returns the first inconsistency found, or nil
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.validate()
}

func (a *Allocator) validate() error {
	err := a.metadata.Validate()
	if err != nil {
		return err
	}

	if a.liveAllocations != nil && a.liveAllocations.Count() != a.metadata.AllocationCount() {
		return errors.Newf("the allocator tracks %d live allocations, but the heap holds %d", a.liveAllocations.Count(), a.metadata.AllocationCount())
	}

	return a.metadata.CheckCorruption()
}

// Check audits the heap and reports whether it is consistent. Violations are logged at error
// level. When verbose is true, every block is also logged at debug level as it is visited.
func (a *Allocator) Check(verbose bool) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if verbose {
		a.logHeap()
	}

	err := a.validate()
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[HEAP CHECK] heap is inconsistent",
			slog.Any("error", err),
		)
		return false
	}

	return true
}

func (a *Allocator) logHeap() {
	a.logger.Debug("[HEAP CHECK] heap",
		slog.Int("Extent", a.metadata.Extent()),
		slog.Int("FreeBlocks", a.metadata.FreeRegionsCount()),
		slog.Int("FreeBytes", a.metadata.SumFreeSize()),
	)

	err := a.metadata.VisitAllRegions(func(bp metadata.BlockPtr, size int, free bool) error {
		header, footer := a.metadata.Tags(bp)
		a.logger.Debug("[HEAP CHECK] block",
			slog.Int("Offset", int(bp)),
			slog.String("Header", header.String()),
			slog.String("Footer", footer.String()),
		)
		return nil
	})
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError,
			"[HEAP CHECK] error while iterating blocks",
			slog.Any("error", err))
	}

	a.logger.Debug("[HEAP CHECK] epilogue", slog.Int("Offset", a.metadata.Extent()))
}

// CheckCorruption verifies the margins written after each allocation when built with the
// debug_mem_utils tag. Without the tag it always returns nil.
func (a *Allocator) CheckCorruption() error {
	a.logger.Debug("Allocator::CheckCorruption")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.metadata.CheckCorruption()
}

// Destroy releases the heap. Every allocation must have been freed first; otherwise each one
// is logged and an error is returned. A provider that implements io.Closer is closed.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.metadata.IsEmpty() {
		a.metadata.DebugLogAllAllocations(a.logger, logUnreleasedMemory)
		return errors.Newf("%d allocations were not freed before the destruction of this allocator", a.metadata.AllocationCount())
	}

	if closer, ok := a.provider.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

func logUnreleasedMemory(logger *slog.Logger, bp metadata.BlockPtr, size int) {
	logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Int("offset", int(bp)),
		slog.Int("size", size),
	)
}
