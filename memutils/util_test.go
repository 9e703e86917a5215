package memutils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tagalloc/memutils"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, memutils.AlignUp(0, 16))
	require.Equal(t, 16, memutils.AlignUp(1, 16))
	require.Equal(t, 16, memutils.AlignUp(16, 16))
	require.Equal(t, 32, memutils.AlignUp(17, 16))
	require.Equal(t, uint64(4096), memutils.AlignUp(uint64(4095), 8))
}

func TestIsAligned(t *testing.T) {
	require.True(t, memutils.IsAligned(48, 16))
	require.False(t, memutils.IsAligned(40, 16))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(16, "alignment"))
	require.NoError(t, memutils.CheckPow2(uint(1), "alignment"))

	err := memutils.CheckPow2(24, "alignment")
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
	require.Contains(t, err.Error(), "alignment is 24")

	require.Error(t, memutils.CheckPow2(0, "alignment"))
}

func TestCheckAligned(t *testing.T) {
	require.NoError(t, memutils.CheckAligned(4096, 16, "ChunkSize"))

	err := memutils.CheckAligned(4100, 16, "ChunkSize")
	require.True(t, errors.Is(err, memutils.ErrInvalidOption))

	err = memutils.CheckAligned(-16, 16, "ChunkSize")
	require.True(t, errors.Is(err, memutils.ErrInvalidOption))

	err = memutils.CheckAligned(48, 24, "ChunkSize")
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
	require.False(t, errors.Is(err, memutils.ErrInvalidOption))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	stats.RegionBytes = 4128

	stats.AddAllocation(32)
	stats.AddAllocation(112)
	stats.AddFreeBlock(3952)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes:     4128,
			BlockCount:      3,
			AllocationCount: 2,
			AllocationBytes: 144,
		},
		FreeBlockCount:    1,
		FreeBytes:         3952,
		AllocationSizeMin: 32,
		AllocationSizeMax: 112,
		FreeBlockSizeMin:  3952,
		FreeBlockSizeMax:  3952,
	}, stats)

	require.InDelta(t, 144.0/4128.0, stats.Utilization(), 1e-9)
}
