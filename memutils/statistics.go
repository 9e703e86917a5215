package memutils

import "math"

// Statistics summarizes the contents of a heap region. Byte counts are whole block sizes,
// boundary tags included.
type Statistics struct {
	RegionBytes     int
	BlockCount      int
	AllocationCount int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.RegionBytes = 0
	s.BlockCount = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
}

// DetailedStatistics extends Statistics with free block and size distribution data
type DetailedStatistics struct {
	Statistics
	FreeBlockCount    int
	FreeBytes         int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeBlockSizeMin  int
	FreeBlockSizeMax  int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeBlockCount = 0
	s.FreeBytes = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeBlockSizeMin = math.MaxInt
	s.FreeBlockSizeMax = 0
}

func (s *DetailedStatistics) AddFreeBlock(size int) {
	s.BlockCount++
	s.FreeBlockCount++
	s.FreeBytes += size

	if size < s.FreeBlockSizeMin {
		s.FreeBlockSizeMin = size
	}

	if size > s.FreeBlockSizeMax {
		s.FreeBlockSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.BlockCount++
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

// Utilization returns the fraction of the region occupied by allocated blocks, in the range [0, 1]
func (s *Statistics) Utilization() float64 {
	if s.RegionBytes == 0 {
		return 0
	}
	return float64(s.AllocationBytes) / float64(s.RegionBytes)
}
