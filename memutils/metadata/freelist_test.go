package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tagalloc/memutils/region"
)

func newTestMetadata(t *testing.T) *ExplicitListMetadata {
	provider, err := region.NewSliceProvider(1 << 20)
	require.NoError(t, err)
	r, err := region.New(provider)
	require.NoError(t, err)

	m, err := NewExplicitListMetadata(r, DefaultChunkSize)
	require.NoError(t, err)
	require.NoError(t, m.Init())

	return m
}

func freeListOrder(m *ExplicitListMetadata) []BlockPtr {
	var order []BlockPtr
	for bp := m.freeList.first(); bp != NullPtr; bp = m.freeList.next(bp) {
		order = append(order, bp)
	}
	return order
}

func TestFreeListIsLIFO(t *testing.T) {
	m := newTestMetadata(t)

	var ptrs []BlockPtr
	for i := 0; i < 6; i++ {
		bp, err := m.Alloc(16)
		require.NoError(t, err)
		ptrs = append(ptrs, bp)
	}
	tail := freeListOrder(m)
	require.Len(t, tail, 1)

	isolated := m.counters.CoalesceCases[0]

	// Free every other block so nothing coalesces
	m.Free(ptrs[0])
	m.Free(ptrs[2])
	m.Free(ptrs[4])

	require.Equal(t, []BlockPtr{ptrs[4], ptrs[2], ptrs[0], tail[0]}, freeListOrder(m))
	require.Equal(t, isolated+3, m.counters.CoalesceCases[0])
	require.NoError(t, m.Validate())

	// First fit takes the most recently freed block
	bp, err := m.Alloc(16)
	require.NoError(t, err)
	require.Equal(t, ptrs[4], bp)
	require.Equal(t, []BlockPtr{ptrs[2], ptrs[0], tail[0]}, freeListOrder(m))
}

func TestFreeListRemoveMiddle(t *testing.T) {
	m := newTestMetadata(t)

	var ptrs []BlockPtr
	for i := 0; i < 5; i++ {
		bp, err := m.Alloc(16)
		require.NoError(t, err)
		ptrs = append(ptrs, bp)
	}

	m.Free(ptrs[0])
	m.Free(ptrs[2])

	// Freeing the block between two free blocks unlinks both neighbors from the list
	m.Free(ptrs[1])
	require.Equal(t, 1, m.counters.CoalesceCases[3])

	order := freeListOrder(m)
	require.Len(t, order, 2)
	require.Equal(t, ptrs[0], order[0])
	require.Equal(t, 3*MinBlockSize, m.header(ptrs[0]).Size())
	require.NoError(t, m.Validate())
}

func TestFreeListLinksLiveInPayload(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	q, err := m.Alloc(16)
	require.NoError(t, err)
	m.Free(p)

	rest := m.nextBlock(q)
	require.Equal(t, NullPtr, m.freeList.node(p).prev())
	require.Equal(t, rest, m.freeList.node(p).next())
	require.Equal(t, p, m.freeList.node(rest).prev())
	require.Equal(t, NullPtr, m.freeList.node(rest).next())
}

func TestFreeListRemovePanicsOnBrokenList(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	_, err = m.Alloc(16)
	require.NoError(t, err)
	m.Free(p)

	rest := freeListOrder(m)[1]
	m.freeList.node(rest).setPrev(NullPtr)

	require.Panics(t, func() {
		m.freeList.remove(rest, m.header(rest).Size())
	})
}

func TestValidateDetectsBrokenBackLink(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	_, err = m.Alloc(16)
	require.NoError(t, err)
	m.Free(p)
	require.NoError(t, m.Validate())

	rest := freeListOrder(m)[1]
	m.freeList.node(rest).setPrev(rest)

	require.Error(t, m.Validate())
}

func TestValidateDetectsCycle(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	_, err = m.Alloc(16)
	require.NoError(t, err)
	m.Free(p)

	rest := freeListOrder(m)[1]
	m.freeList.node(rest).setNext(p)

	require.Error(t, m.Validate())
}

func TestValidateDetectsMismatchedFooter(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	m.r.PutWord(m.footerOffset(p), mustTag(MinBlockSize, false).Encode())
	require.Error(t, m.Validate())
}

func TestValidateDetectsUncoalescedNeighbors(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	q, err := m.Alloc(16)
	require.NoError(t, err)
	_, err = m.Alloc(16)
	require.NoError(t, err)

	// Mark both blocks free and list them without coalescing
	m.setTags(p, mustTag(m.header(p).Size(), false))
	m.freeList.insert(p, m.header(p).Size())
	m.setTags(q, mustTag(m.header(q).Size(), false))
	m.freeList.insert(q, m.header(q).Size())
	m.allocCount -= 2

	require.Error(t, m.Validate())
}

func TestValidateDetectsUnlistedFreeBlock(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	_, err = m.Alloc(16)
	require.NoError(t, err)

	m.setTags(p, mustTag(m.header(p).Size(), false))
	m.allocCount--

	require.Error(t, m.Validate())
}

func TestValidateDetectsBadEpilogue(t *testing.T) {
	m := newTestMetadata(t)

	m.r.PutWord(m.Extent()-WordSize, mustTag(0, false).Encode())
	require.Error(t, m.Validate())
}

func TestValidateDetectsBadPrologue(t *testing.T) {
	m := newTestMetadata(t)

	m.r.PutWord(m.headerOffset(m.prologue), mustTag(PrologueSize, false).Encode())
	require.Error(t, m.Validate())
}

func TestValidateDetectsAllocationCountDrift(t *testing.T) {
	m := newTestMetadata(t)

	_, err := m.Alloc(16)
	require.NoError(t, err)
	m.allocCount++

	require.Error(t, m.Validate())
}

func TestVisitAllRegionsStopsAtCorruptHeader(t *testing.T) {
	m := newTestMetadata(t)

	p, err := m.Alloc(16)
	require.NoError(t, err)
	_, err = m.Alloc(16)
	require.NoError(t, err)

	for _, word := range []uint64{1<<44 | MinBlockSize | 1, 0xFFFFFFFFFFFFFFF1, 16 | 1} {
		m.r.PutWord(m.headerOffset(p), word)

		visited := 0
		err = m.VisitAllRegions(func(bp BlockPtr, size int, free bool) error {
			visited++
			return nil
		})
		require.Error(t, err)
		require.Zero(t, visited)
		require.Error(t, m.Validate())
	}
}
