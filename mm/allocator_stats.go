package mm

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/tagalloc/memutils"
)

// CalculateStatistics sums the state of the heap into stats. stats is cleared first.
func (a *Allocator) CalculateStatistics(stats *memutils.DetailedStatistics) {
	a.logger.Debug("Allocator::CalculateStatistics")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	stats.Clear()
	a.metadata.AddDetailedStatistics(stats)
}

// CalculateBasicStatistics sums the totals of the heap into stats without collecting size
// distributions. stats is cleared first.
func (a *Allocator) CalculateBasicStatistics(stats *memutils.Statistics) {
	a.logger.Debug("Allocator::CalculateBasicStatistics")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	stats.Clear()
	a.metadata.AddStatistics(stats)
}

// BuildStatsString returns a json document describing the heap. When detailed is true, every
// block is listed in address order.
func (a *Allocator) BuildStatsString(detailed bool) string {
	a.logger.Debug("Allocator::BuildStatsString")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.metadata.AddDetailedStatistics(&stats)
	counters := a.metadata.Counters()

	writer := jwriter.NewWriter()
	objState := writer.Object()

	totalObj := objState.Name("Total").Object()
	printDetailedStatistics(&totalObj, &stats)
	totalObj.End()

	countersObj := objState.Name("Counters").Object()
	countersObj.Name("Allocations").Int(counters.Allocations)
	countersObj.Name("Frees").Int(counters.Frees)
	countersObj.Name("Extensions").Int(counters.Extensions)
	countersObj.Name("ExtensionBytes").Int(counters.ExtensionBytes)
	countersObj.Name("Splits").Int(counters.Splits)
	coalesceArray := countersObj.Name("CoalesceCases").Array()
	for _, count := range counters.CoalesceCases {
		coalesceArray.Int(count)
	}
	coalesceArray.End()
	countersObj.Name("ReallocInPlace").Int(counters.ReallocInPlace)
	countersObj.Name("ReallocAbsorbed").Int(counters.ReallocAbsorbed)
	countersObj.Name("ReallocMoved").Int(counters.ReallocMoved)
	countersObj.End()

	if detailed {
		heapObj := objState.Name("Heap").Object()
		heapObj.Name("Flags").String(a.createFlags.String())
		a.metadata.BlockJsonData(heapObj)
		a.metadata.PrintDetailedMap(heapObj)
		heapObj.End()
	}

	objState.End()

	return string(writer.Bytes())
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("RegionBytes").Int(stats.RegionBytes)
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("FreeBlockCount").Int(stats.FreeBlockCount)
	json.Name("FreeBytes").Int(stats.FreeBytes)
	json.Name("Utilization").Float64(stats.Utilization())

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.FreeBlockCount > 0 {
		json.Name("FreeBlockSizeMin").Int(stats.FreeBlockSizeMin)
		json.Name("FreeBlockSizeMax").Int(stats.FreeBlockSizeMax)
	}
}
