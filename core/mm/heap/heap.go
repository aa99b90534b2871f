// Package heap implements the sub-page global allocator: a size-class
// free-list array layered over package pmm for requests smaller than a
// page. Uses the same in-place free-list idiom pmm's BlockPool uses,
// mirrored here for heap size classes instead of buddy metadata.
package heap

import (
	"unsafe"

	"corekernel/core/mm"
	"corekernel/core/mm/pmm"
	"corekernel/core/sync"
)

// numClasses is the number of power-of-two size classes in
// [WordSize, PageSize/2].
const numClasses = mm.PageShift - mm.PointerShift

// freeNode is the in-place representation of a free heap object: the first
// word of the slot is reused as the "next" pointer.
type freeNode struct {
	next *freeNode
}

var (
	classFreeList [numClasses]*freeNode
	lock          sync.Spinlock

	slabStart, slabEnd uintptr
)

// classIndex returns the free-list index for a class of the given size
// (size must already be a power of two in range).
func classIndex(size uintptr) int {
	idx := 0
	for s := uintptr(mm.WordSize); s < size; s <<= 1 {
		idx++
	}
	return idx
}

func classSize(idx int) uintptr {
	return uintptr(mm.WordSize) << uint(idx)
}

// effectiveSize computes the smallest power of two >= max(size, WordSize)
// such that effectiveSize/align is itself a power of two.
func effectiveSize(size, align uintptr) uintptr {
	eff := uintptr(mm.WordSize)
	for eff < size || !isPow2(eff/maxUintptr(align, 1)) || eff < align {
		eff <<= 1
	}
	return eff
}

func isPow2(v uintptr) bool {
	return v != 0 && v&(v-1) == 0
}

func maxUintptr(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}

// Allocate reserves size bytes aligned to align. Requests
// whose effective size reaches a full page are forwarded straight to the
// buddy allocator; everything else comes out of a size-class free list,
// refilled by carving a slab obtained from pmm.Allocate(1).
func Allocate(size, align uintptr) unsafe.Pointer {
	eff := effectiveSize(size, align)

	if eff >= uintptr(mm.PageSize) {
		pages := uint32(eff / uintptr(mm.PageSize))
		return pmm.Allocate(pages)
	}

	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)
	return allocateClassLocked(eff)
}

func allocateClassLocked(eff uintptr) unsafe.Pointer {
	idx := classIndex(eff)

	if n := classFreeList[idx]; n != nil {
		classFreeList[idx] = n.next
		return unsafe.Pointer(n)
	}

	if slabStart == slabEnd {
		page := pmm.Allocate(1)
		if page == nil {
			return nil
		}
		slabStart = uintptr(page)
		slabEnd = slabStart + uintptr(mm.PageSize)
	}

	// Split off leading misalignment into smaller size-class objects
	// until the remaining slab prefix is exactly eff bytes, then hand out that prefix.
	for slabEnd-slabStart > eff {
		remaining := slabEnd - slabStart
		donate := largestClassNotExceeding(remaining - eff)
		pushClassLocked(classIndex(donate), slabStart)
		slabStart += donate
	}

	result := slabStart
	slabStart += eff
	return unsafe.Pointer(result)
}

// largestClassNotExceeding returns the largest size-class value <= limit,
// used to donate leading slab misalignment in objects the free lists can
// reuse instead of wasting them.
func largestClassNotExceeding(limit uintptr) uintptr {
	v := uintptr(mm.WordSize)
	for v*2 <= limit && v*2 <= uintptr(mm.PageSize)/2 {
		v *= 2
	}
	return v
}

func pushClassLocked(idx int, addr uintptr) {
	n := (*freeNode)(unsafe.Pointer(addr))
	n.next = classFreeList[idx]
	classFreeList[idx] = n
}

// Deallocate returns a block obtained from Allocate(size, align, ...) to
// the heap.
func Deallocate(ptr unsafe.Pointer, size, align uintptr) {
	if ptr == nil {
		return
	}
	eff := effectiveSize(size, align)

	if eff >= uintptr(mm.PageSize) {
		pages := uint32(eff / uintptr(mm.PageSize))
		pmm.Free(ptr, pages)
		return
	}

	wasEnabled := lock.Acquire()
	pushClassLocked(classIndex(eff), uintptr(ptr))
	lock.Release(wasEnabled)
}

// Reallocate resizes a previously allocated block in place when the
// effective size does not change, or migrates it via
// allocate-copy-free otherwise.
func Reallocate(ptr unsafe.Pointer, oldSize, newSize, align uintptr) unsafe.Pointer {
	oldEff := effectiveSize(oldSize, align)
	newEff := effectiveSize(newSize, align)
	if oldEff == newEff {
		return ptr
	}

	next := Allocate(newSize, align)
	if next == nil {
		return nil
	}

	copySize := oldSize
	if newSize < copySize {
		copySize = newSize
	}
	copyBytes(next, ptr, copySize)

	Deallocate(ptr, oldSize, align)
	return next
}

func copyBytes(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	d := unsafe.Slice((*byte)(dst), int(size))
	s := unsafe.Slice((*byte)(src), int(size))
	copy(d, s)
}
