package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/tagalloc/memutils"
	"golang.org/x/exp/slog"
)

// VisitAllRegions walks the heap in address order from the first real block to the epilogue.
// The walk stops with an error at the first header whose size would leave the region, so it is
// safe to run on a corrupted heap.
func (m *ExplicitListMetadata) VisitAllRegions(handleBlock func(bp BlockPtr, size int, free bool) error) error {
	if !m.initialized {
		return nil
	}

	extent := m.Extent()
	for bp := m.prologue + PrologueSize; ; bp = m.nextBlock(bp) {
		if m.headerOffset(bp) > extent-WordSize {
			return errors.Errorf("block at offset %d starts past the end of the heap", bp)
		}

		tag := m.header(bp)
		if tag.Size() == 0 {
			return nil
		}
		if tag.Size() < MinBlockSize || int(bp)+tag.Size()-WordSize > extent {
			return errors.Errorf("block at offset %d has an invalid size %d", bp, tag.Size())
		}

		err := handleBlock(bp, tag.Size(), !tag.Allocated())
		if err != nil {
			return err
		}
	}
}

func (m *ExplicitListMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionBytes += m.Extent()

	_ = m.VisitAllRegions(func(bp BlockPtr, size int, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

func (m *ExplicitListMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.RegionBytes += m.Extent()
	stats.BlockCount += m.allocCount + m.freeList.count
	stats.AllocationCount += m.allocCount

	_ = m.VisitAllRegions(func(bp BlockPtr, size int, free bool) error {
		if !free {
			stats.AllocationBytes += size
		}
		return nil
	})
}

func (m *ExplicitListMetadata) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(m.Extent())
	json.Name("UnusedBytes").Int(m.SumFreeSize())
	json.Name("Allocations").Int(m.allocCount)
	json.Name("UnusedRanges").Int(m.freeList.count)
	json.Name("ChunkSize").Int(m.chunkSize)
}

func (m *ExplicitListMetadata) PrintDetailedMap(json jwriter.ObjectState) {
	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = m.VisitAllRegions(func(bp BlockPtr, size int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(int(bp))
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("FREE")
		} else {
			obj.Name("Type").String("ALLOCATED")
			obj.Name("PayloadSize").Int(m.PayloadSize(bp))
		}

		return nil
	})
}

func (m *ExplicitListMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, bp BlockPtr, size int)) {
	_ = m.VisitAllRegions(func(bp BlockPtr, size int, free bool) error {
		if !free {
			logFunc(logger, bp, size)
		}
		return nil
	})
}
