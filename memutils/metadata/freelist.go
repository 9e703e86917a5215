package metadata

import (
	"fmt"

	"github.com/vkngwrapper/tagalloc/memutils/region"
)

// freeNode is the view of a free block's payload as a pair of list links. The backward link
// occupies the first payload word and the forward link the second. Only free blocks may be
// viewed this way; the words belong to the application once the block is allocated.
type freeNode struct {
	r  *region.Region
	bp BlockPtr
}

func (n freeNode) prev() BlockPtr {
	return BlockPtr(n.r.Word(int(n.bp)))
}

func (n freeNode) next() BlockPtr {
	return BlockPtr(n.r.Word(int(n.bp) + WordSize))
}

func (n freeNode) setPrev(bp BlockPtr) {
	n.r.PutWord(int(n.bp), uint64(bp))
}

func (n freeNode) setNext(bp BlockPtr) {
	n.r.PutWord(int(n.bp)+WordSize, uint64(bp))
}

// freeList is an explicit doubly linked LIFO list threaded through the free blocks
type freeList struct {
	r     *region.Region
	head  BlockPtr
	count int
	size  int
}

func (l *freeList) node(bp BlockPtr) freeNode {
	return freeNode{r: l.r, bp: bp}
}

// insert pushes bp onto the head of the list. size is the block's size in bytes.
func (l *freeList) insert(bp BlockPtr, size int) {
	if bp == NullPtr {
		panic("cannot insert the null block into the free list")
	}

	n := l.node(bp)
	n.setPrev(NullPtr)
	n.setNext(l.head)
	if l.head != NullPtr {
		l.node(l.head).setPrev(bp)
	}
	l.head = bp

	l.count++
	l.size += size
}

// remove unlinks bp using its own links. size is the block's size in bytes.
func (l *freeList) remove(bp BlockPtr, size int) {
	if l.count == 0 {
		panic(fmt.Sprintf("cannot remove block at offset %d from an empty free list", bp))
	}

	n := l.node(bp)
	prev, next := n.prev(), n.next()

	if prev == NullPtr {
		if l.head != bp {
			panic(fmt.Sprintf("block at offset %d has no previous link but is not the free list head", bp))
		}
		l.head = next
	} else {
		l.node(prev).setNext(next)
	}

	if next != NullPtr {
		l.node(next).setPrev(prev)
	}

	l.count--
	l.size -= size
}

func (l *freeList) first() BlockPtr {
	return l.head
}

func (l *freeList) next(bp BlockPtr) BlockPtr {
	return l.node(bp).next()
}
