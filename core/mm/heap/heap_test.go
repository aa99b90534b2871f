package heap

import (
	"testing"
	"unsafe"

	"corekernel/core/mm"
	"corekernel/core/mm/pmm"
)

func resetHeap() {
	for i := range classFreeList {
		classFreeList[i] = nil
	}
	slabStart, slabEnd = 0, 0
}

func installArena(t *testing.T, pages int) {
	t.Helper()
	arena := make([]byte, pages*int(mm.PageSize))
	base := uintptr(unsafe.Pointer(&arena[0]))

	pmm.SetTranslator(
		func(p uintptr) (uintptr, bool) { return p, true },
		func(v uintptr) (uintptr, bool) { return v, true },
	)
	pmm.Init([]pmm.MemoryRegion{{StartPhys: base, PageCount: uint64(pages)}})
}

func TestEffectiveSizeClassing(t *testing.T) {
	resetHeap()
	if got := effectiveSize(24, 8); got != 32 {
		t.Fatalf("expected effective size 32 for (24,8), got %d", got)
	}
}

func TestAllocateDeallocateClassIdempotent(t *testing.T) {
	resetHeap()
	installArena(t, 8)

	p := Allocate(24, 8)
	if p == nil {
		t.Fatal("expected non-nil allocation")
	}
	idx := classIndex(effectiveSize(24, 8))
	before := listLen(classFreeList[idx])

	Deallocate(p, 24, 8)
	if got := listLen(classFreeList[idx]); got != before+1 {
		t.Fatalf("expected class list length %d after matched dealloc, got %d", before+1, got)
	}

	p2 := Allocate(24, 8)
	if p2 != p {
		t.Fatalf("expected reuse of freed slot %#x, got %#x", uintptr(p), uintptr(p2))
	}
}

func TestAllocateSameSlabAdjacent(t *testing.T) {
	resetHeap()
	installArena(t, 8)

	a := Allocate(24, 8)
	b := Allocate(24, 8)
	if a == nil || b == nil {
		t.Fatal("expected two allocations")
	}
	// The first request takes the slab's last 32 bytes; the 32-byte slot
	// just below it is then the head of the class list, so the second
	// request lands 32 bytes lower.
	diff := uintptr(a) - uintptr(b)
	if diff != 32 {
		t.Fatalf("expected second allocation 32 bytes below the first, got diff=%d", diff)
	}
}

func listLen(n *freeNode) int {
	c := 0
	for ; n != nil; n = n.next {
		c++
	}
	return c
}
