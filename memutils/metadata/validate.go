package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/tagalloc/memutils"
)

// Validate audits the whole heap without modifying it and returns the first violation found:
//   - every free list entry lies inside the heap, is free in both tags, and links back to its
//     predecessor
//   - the prologue has its fixed size and is allocated
//   - every block in address order is aligned, at least MinBlockSize, fits in the region, and
//     has matching header and footer
//   - no two physically adjacent blocks are both free
//   - the free list holds exactly the free blocks of the address-order walk
//   - the epilogue is a zero-sized allocated header in the last word of the region
//   - padding, prologue, blocks and epilogue account for every byte of the region
func (m *ExplicitListMetadata) Validate() error {
	if !m.initialized {
		return errors.New("metadata has not been initialized")
	}

	extent := m.Extent()
	firstBlock := m.prologue + PrologueSize
	maxBlocks := extent / MinBlockSize

	// Check integrity of the free list
	listed := swiss.NewMap[BlockPtr, struct{}](uint32(m.freeList.count + 1))
	listSize := 0
	prev := NullPtr
	for bp := m.freeList.first(); bp != NullPtr; bp = m.freeList.next(bp) {
		if bp < firstBlock || int(bp)+MinBlockSize-WordSize > extent {
			return errors.Errorf("free list entry at offset %d lies outside the heap", bp)
		}

		size := m.header(bp).Size()
		if size < MinBlockSize || int(bp)+size-WordSize > extent {
			return errors.Errorf("free list entry at offset %d has an invalid size %d", bp, size)
		}

		if m.header(bp).Allocated() || m.footer(bp).Allocated() {
			return errors.Errorf("block at offset %d is in the free list but is not free", bp)
		}

		if m.freeList.node(bp).prev() != prev {
			return errors.Errorf("block at offset %d follows the block at offset %d in the free list, but its previous link is %d", bp, prev, m.freeList.node(bp).prev())
		}

		if listed.Has(bp) || listed.Count() >= maxBlocks {
			return errors.Errorf("free list contains a cycle at the block at offset %d", bp)
		}
		listed.Put(bp, struct{}{})
		listSize += size
		prev = bp
	}

	if listed.Count() != m.freeList.count {
		return errors.Errorf("the free list holds %d blocks, but the metadata counted %d", listed.Count(), m.freeList.count)
	}
	if listSize != m.freeList.size {
		return errors.Errorf("the free list blocks add up to %d bytes, but the metadata counted %d", listSize, m.freeList.size)
	}

	// Check the prologue
	if m.header(m.prologue).Size() != PrologueSize || !m.header(m.prologue).Allocated() {
		return errors.Errorf("bad prologue header %s", m.header(m.prologue))
	}
	if m.header(m.prologue) != m.footer(m.prologue) {
		return errors.Errorf("prologue header %s does not match its footer %s", m.header(m.prologue), m.footer(m.prologue))
	}

	// Walk the blocks in address order
	calculatedSize := int(m.prologue) - WordSize + PrologueSize
	var freeCount, allocCount int
	prevFree := false

	bp := firstBlock
	for ; int(bp) <= extent && m.header(bp).Size() > 0; bp = m.nextBlock(bp) {
		hdr := m.header(bp)

		if !memutils.IsAligned(int(bp), Alignment) {
			return errors.Errorf("block at offset %d is not aligned to %d bytes", bp, Alignment)
		}

		if hdr.Size() < MinBlockSize {
			return errors.Errorf("block at offset %d has size %d, below the minimum block size", bp, hdr.Size())
		}

		if int(bp)+hdr.Size()-WordSize > extent {
			return errors.Errorf("block at offset %d with size %d runs past the end of the heap", bp, hdr.Size())
		}

		if hdr != m.footer(bp) {
			return errors.Errorf("block at offset %d has header %s but footer %s", bp, hdr, m.footer(bp))
		}

		if hdr.Allocated() {
			allocCount++
			prevFree = false
		} else {
			if prevFree {
				return errors.Errorf("block at offset %d is free and follows another free block", bp)
			}
			if !listed.Has(bp) {
				return errors.Errorf("free block at offset %d is missing from the free list", bp)
			}
			freeCount++
			prevFree = true
		}

		calculatedSize += hdr.Size()
	}

	// Check the epilogue
	if m.headerOffset(bp) != extent-WordSize {
		return errors.Errorf("the last block ends at offset %d, but the epilogue should be at offset %d", m.headerOffset(bp), extent-WordSize)
	}
	if m.header(bp).Size() != 0 || !m.header(bp).Allocated() {
		return errors.Errorf("bad epilogue header %s", m.header(bp))
	}
	calculatedSize += WordSize

	if calculatedSize != extent {
		return errors.Errorf("the heap region is %d bytes, but its blocks only added up to %d", extent, calculatedSize)
	}

	if freeCount != listed.Count() {
		return errors.Errorf("the number of free blocks in the heap and the number of blocks in the free list do not match! free list size: %d, heap free blocks: %d", listed.Count(), freeCount)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the allocated blocks only added up to %d", m.allocCount, allocCount)
	}

	return nil
}
