package trace

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/tagalloc/memutils"
	"github.com/vkngwrapper/tagalloc/memutils/metadata"
)

// Heap is the allocator surface a trace is replayed against
type Heap interface {
	Allocate(size int) (metadata.BlockPtr, error)
	Free(p metadata.BlockPtr)
	Reallocate(p metadata.BlockPtr, size int) (metadata.BlockPtr, error)
	Bytes(p metadata.BlockPtr) []byte
	Extent() int
	Validate() error
}

// Result summarizes a replay
type Result struct {
	Ops int
	// PeakPayload is the largest sum of requested sizes live at any point in the trace
	PeakPayload int
	// Extent is the size of the heap region when the trace finished
	Extent int
}

// Utilization returns the ratio of peak live payload to the final heap extent
func (r Result) Utilization() float64 {
	if r.Extent == 0 {
		return 0
	}
	return float64(r.PeakPayload) / float64(r.Extent)
}

type liveAllocation struct {
	ptr     metadata.BlockPtr
	size    int
	pattern byte
}

type replayer struct {
	heap Heap
	live *swiss.Map[int, liveAllocation]

	payload     int
	peakPayload int
}

// Replay issues every operation in t against heap. After each operation it validates the heap,
// checks that new payloads are 16-byte aligned and do not overlap any live payload, and checks
// that reallocated payloads kept their contents. Each payload is filled with a pattern that is
// verified again when it is freed and when the trace finishes. The first failure is returned
// along with the partial result.
func Replay(heap Heap, t *Trace) (Result, error) {
	r := &replayer{
		heap: heap,
		live: swiss.NewMap[int, liveAllocation](uint32(t.IDCount + 1)),
	}
	result := Result{}

	for index, op := range t.Ops {
		err := r.apply(op, byte(index))
		if err == nil {
			err = heap.Validate()
		}
		if err != nil {
			result.Extent = heap.Extent()
			result.PeakPayload = r.peakPayload
			return result, errors.Wrapf(err, "op %d (%s %d %d)", index, op.Kind, op.ID, op.Size)
		}

		result.Ops++
	}

	var err error
	r.live.Iter(func(id int, alloc liveAllocation) (stop bool) {
		err = r.checkPattern(id, alloc, alloc.size)
		return err != nil
	})

	result.Extent = heap.Extent()
	result.PeakPayload = r.peakPayload
	return result, err
}

func (r *replayer) apply(op Op, pattern byte) error {
	switch op.Kind {
	case OpAlloc:
		if r.live.Has(op.ID) {
			return errors.Newf("id %d is already allocated", op.ID)
		}

		p, err := r.heap.Allocate(op.Size)
		if err != nil {
			return err
		}
		if p == metadata.NullPtr {
			// Empty requests stay live so the trace can still free them
			r.live.Put(op.ID, liveAllocation{})
			return nil
		}

		return r.place(op.ID, liveAllocation{ptr: p, size: op.Size, pattern: pattern})

	case OpRealloc:
		old, ok := r.live.Get(op.ID)
		if !ok {
			old = liveAllocation{ptr: metadata.NullPtr}
		}

		p, err := r.heap.Reallocate(old.ptr, op.Size)
		if err != nil {
			return err
		}

		if ok {
			r.live.Delete(op.ID)
			r.payload -= old.size
		}
		if p == metadata.NullPtr {
			r.live.Put(op.ID, liveAllocation{})
			return nil
		}

		if ok {
			err = r.checkPattern(op.ID, liveAllocation{ptr: p, pattern: old.pattern}, memutils.Min(old.size, op.Size))
			if err != nil {
				return err
			}
		}

		return r.place(op.ID, liveAllocation{ptr: p, size: op.Size, pattern: pattern})

	case OpFree:
		old, ok := r.live.Get(op.ID)
		if !ok {
			return errors.Newf("id %d is not allocated", op.ID)
		}

		err := r.checkPattern(op.ID, old, old.size)
		if err != nil {
			return err
		}

		r.heap.Free(old.ptr)
		r.live.Delete(op.ID)
		r.payload -= old.size
		return nil

	default:
		return errors.Newf("unknown operation %s", op.Kind)
	}
}

// place checks a new payload against the live set, fills it and records it
func (r *replayer) place(id int, alloc liveAllocation) error {
	if !memutils.IsAligned(int(alloc.ptr), metadata.Alignment) {
		return errors.Newf("payload for id %d at offset %d is not aligned to %d bytes", id, alloc.ptr, metadata.Alignment)
	}

	data := r.heap.Bytes(alloc.ptr)
	if len(data) < alloc.size {
		return errors.Newf("payload for id %d holds %d bytes, but %d were requested", id, len(data), alloc.size)
	}

	start, end := int(alloc.ptr), int(alloc.ptr)+alloc.size
	if end > r.heap.Extent() {
		return errors.Newf("payload for id %d at [%d, %d) runs past the heap extent %d", id, start, end, r.heap.Extent())
	}

	var err error
	r.live.Iter(func(otherID int, other liveAllocation) (stop bool) {
		otherStart, otherEnd := int(other.ptr), int(other.ptr)+other.size
		if start < otherEnd && otherStart < end {
			err = errors.Newf("payload for id %d at [%d, %d) overlaps id %d at [%d, %d)", id, start, end, otherID, otherStart, otherEnd)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}

	for i := 0; i < alloc.size; i++ {
		data[i] = alloc.pattern
	}

	r.live.Put(id, alloc)
	r.payload += alloc.size
	r.peakPayload = memutils.Max(r.peakPayload, r.payload)

	return nil
}

func (r *replayer) checkPattern(id int, alloc liveAllocation, n int) error {
	if n == 0 {
		return nil
	}

	data := r.heap.Bytes(alloc.ptr)
	if len(data) < n {
		return errors.Newf("payload for id %d holds %d bytes, expected at least %d", id, len(data), n)
	}

	for i := 0; i < n; i++ {
		if data[i] != alloc.pattern {
			return errors.Newf("payload for id %d at offset %d was overwritten at byte %d", id, alloc.ptr, i)
		}
	}

	return nil
}
