// Package pmm implements a buddy-style physical page allocator: a
// BuddyTable of per-order free lists backed by a BlockPool of metadata
// nodes carved out of the memory it manages, so the allocator never needs
// an allocator of its own. Uses mockable function variables for the
// hardware-adjacent bits and a kernel.Error sentinel per failure mode.
package pmm

import (
	"unsafe"

	"corekernel/core/kernel"
	"corekernel/core/mm"
	"corekernel/core/sync"
)

// PhysicalPageRange is one buddy block: a run of PageCount contiguous
// physical pages starting at StartPhys, power-of-two sized and aligned to
// its own size. The same struct doubles as a BlockPool node —
// next chains it onto either a BuddyTable order list or the pool's free
// list, never both at once.
type PhysicalPageRange struct {
	StartPhys uintptr
	PageCount uint32
	next      *PhysicalPageRange
}

const maxOrder = mm.MaxOrder

// buddyTable holds the free-list head for each order 0..maxOrder.
var buddyTable [maxOrder + 1]*PhysicalPageRange

// blockPool is the free list of unused PhysicalPageRange nodes, stored
// in-place inside unused pages.
var blockPool *PhysicalPageRange

// lock protects buddyTable and blockPool together with a single
// interrupt-free mutex.
var lock sync.Spinlock

var initialized bool

var (
	errBadPageCount = &kernel.Error{Module: "pmm", Message: "page count is not a power of two in range"}
	errOutOfMemory  = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
)

// physToVirtFn/virtToPhysFn are supplied by the paging layer once the
// straight map is live (core/kmain calls SetTranslator during boot). Until
// then, pmm cannot be used; tests install an identity translator instead
// of depending on package vmm, keeping pmm free of any dependency on the
// paging layer.
var (
	physToVirtFn = func(p uintptr) (uintptr, bool) { return 0, false }
	virtToPhysFn = func(v uintptr) (uintptr, bool) { return 0, false }
)

// SetTranslator installs the phys<->virt conversion functions pmm needs to
// hand out and reclaim straight-mapped pointers. Must be called once,
// before Init.
func SetTranslator(physToVirt func(uintptr) (uintptr, bool), virtToPhys func(uintptr) (uintptr, bool)) {
	physToVirtFn = physToVirt
	virtToPhysFn = virtToPhys
}

// MemoryRegion is a coalesced run of usable physical memory, as produced by
// the caller from the UEFI memory map.
type MemoryRegion struct {
	StartPhys uintptr
	PageCount uint64
}

// Init ingests the given usable memory regions, coalescing adjacent runs and
// dropping the region starting at physical address 0 (reserving the null
// page) before registering what remains as buddy blocks. Must be called
// exactly once, after SetTranslator; double-init is a caller bug and is not
// detected here.
func Init(regions []MemoryRegion) {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	for _, r := range coalesceRegions(regions) {
		if r.StartPhys == 0 {
			continue
		}
		registerRegionLocked(r.StartPhys, r.PageCount)
	}
	initialized = true
}

// coalesceRegions merges adjacent runs of regions (where one region's end
// exactly meets the next one's start) into single, larger regions. The
// caller-provided regions are assumed sorted by StartPhys, matching the
// UEFI memory map's own ordering guarantee.
func coalesceRegions(regions []MemoryRegion) []MemoryRegion {
	if len(regions) == 0 {
		return nil
	}

	out := make([]MemoryRegion, 0, len(regions))
	cur := regions[0]
	for _, r := range regions[1:] {
		curEnd := cur.StartPhys + uintptr(cur.PageCount)*uintptr(mm.PageSize)
		if curEnd == r.StartPhys {
			cur.PageCount += r.PageCount
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}

// registerRegionLocked decomposes a contiguous run of pages into
// power-of-two, alignment-respecting blocks and inserts each into
// buddyTable. The first page of the very first region processed (while
// blockPool is still empty) is consumed to carve the initial metadata
// nodes, the same carve-on-demand idiom Free uses below.
func registerRegionLocked(startPhys uintptr, pageCount uint64) {
	if blockPool == nil && pageCount > 0 {
		carvePoolLocked(startPhys)
		startPhys += uintptr(mm.PageSize)
		pageCount--
	}

	for pageCount > 0 {
		order := maxAlignedOrder(startPhys, pageCount)
		node := popPoolNodeLocked(startPhys)
		node.StartPhys = startPhys
		node.PageCount = 1 << order
		insertLocked(order, node)

		advance := uint64(1) << order
		startPhys += uintptr(advance) * uintptr(mm.PageSize)
		pageCount -= advance
	}
}

// maxAlignedOrder returns the largest order k <= maxOrder such that 2^k
// pages fit in the remaining run and startPhys is aligned to 2^k pages.
func maxAlignedOrder(startPhys uintptr, pageCount uint64) uint {
	order := uint(0)
	for order < maxOrder {
		next := order + 1
		blockPages := uint64(1) << next
		if blockPages > pageCount {
			break
		}
		if uint64(startPhys/uintptr(mm.PageSize))%blockPages != 0 {
			break
		}
		order = next
	}
	return order
}

// nodeSize is the size of one PhysicalPageRange; carvePoolLocked fits
// PageSize/nodeSize of them in one page, generously more than maxOrder+1
// (the most nodes a single carve/merge step could ever need).
const nodeSize = unsafe.Sizeof(PhysicalPageRange{})

// carvePoolLocked reinterprets the page at physPage as an array of
// PhysicalPageRange nodes and pushes every one onto blockPool. Panics if the straight map is not yet
// wired, since that would silently corrupt memory we cannot see.
func carvePoolLocked(physPage uintptr) {
	virt, ok := physToVirtFn(physPage)
	if !ok {
		kernel.Panic(&kernel.Error{Module: "pmm", Message: "carvePoolLocked: no straight-map translation"})
	}

	const nodesPerPage = int(mm.PageSize) / int(nodeSize)
	nodes := (*[nodesPerPage]PhysicalPageRange)(unsafe.Pointer(virt))
	for i := 0; i < nodesPerPage; i++ {
		pushPoolLocked(&nodes[i])
	}
}

func pushPoolLocked(n *PhysicalPageRange) {
	n.next = blockPool
	blockPool = n
}

// popPoolNodeLocked returns a free metadata node, carving a fresh page's
// worth out of fallbackPhysPage if the pool is currently empty.
func popPoolNodeLocked(fallbackPhysPage uintptr) *PhysicalPageRange {
	if blockPool == nil {
		carvePoolLocked(fallbackPhysPage)
	}
	n := blockPool
	blockPool = n.next
	n.next = nil
	return n
}

func insertLocked(order uint, node *PhysicalPageRange) {
	node.next = buddyTable[order]
	buddyTable[order] = node
}

// removeAtLocked scans the free list at order for a block starting at
// start, unlinks and returns it. Returns nil if no match is found, which
// the merge loop treats as "buddy not free".
func removeAtLocked(order uint, start uintptr) *PhysicalPageRange {
	var prev *PhysicalPageRange
	cur := buddyTable[order]
	for cur != nil {
		if cur.StartPhys == start {
			if prev == nil {
				buddyTable[order] = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return cur
		}
		prev, cur = cur, cur.next
	}
	return nil
}

func orderOf(pageCount uint32) (uint, bool) {
	if pageCount == 0 || pageCount&(pageCount-1) != 0 {
		return 0, false
	}
	order := uint(0)
	for pageCount > 1 {
		pageCount >>= 1
		order++
	}
	if order > maxOrder {
		return 0, false
	}
	return order, true
}

// Allocate reserves pageCount (a power of two in [1, 2^MaxOrder]) contiguous
// physical pages and returns a page-aligned virtual pointer inside the
// straight map, or nil on invalid input or exhaustion.
func Allocate(pageCount uint32) unsafe.Pointer {
	order, ok := orderOf(pageCount)
	if !ok {
		return nil
	}

	wasEnabled := lock.Acquire()
	node := allocOrderLocked(order)
	lock.Release(wasEnabled)

	if node == nil {
		return nil
	}

	virt, ok := physToVirtFn(node.StartPhys)
	if !ok {
		kernel.Panic(&kernel.Error{Module: "pmm", Message: "Allocate: no straight-map translation"})
	}
	return unsafe.Pointer(virt)
}

// allocOrderLocked finds the smallest non-empty list at order >= requested,
// splitting downward until the sizes match.
func allocOrderLocked(order uint) *PhysicalPageRange {
	found := order
	for found <= maxOrder && buddyTable[found] == nil {
		found++
	}
	if found > maxOrder {
		return nil
	}

	node := buddyTable[found]
	buddyTable[found] = node.next
	node.next = nil

	for found > order {
		found--
		upperHalf := popPoolNodeLocked(node.StartPhys)
		upperHalf.StartPhys = node.StartPhys + uintptr(uint64(1)<<found)*uintptr(mm.PageSize)
		upperHalf.PageCount = 1 << found
		insertLocked(found, upperHalf)
		node.PageCount = 1 << found
	}
	return node
}

// Free releases a block previously returned by Allocate with the same
// pageCount. Freeing a pointer not obtained from Allocate,
// or freeing it twice, is undefined behavior per the caller contract.
func Free(ptr unsafe.Pointer, pageCount uint32) {
	if ptr == nil {
		return
	}
	order, ok := orderOf(pageCount)
	if !ok {
		return
	}

	startPhys, ok := virtToPhysFn(uintptr(ptr))
	if !ok {
		kernel.Panic(&kernel.Error{Module: "pmm", Message: "Free: pointer is not straight-mapped"})
	}

	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	if blockPool == nil {
		freeWithEmptyPoolLocked(startPhys, 1<<order)
		return
	}

	node := popPoolNodeLocked(startPhys)
	node.StartPhys = startPhys
	node.PageCount = 1 << order
	mergeAndInsertLocked(node)
}

// freeWithEmptyPoolLocked implements the carve-on-free branch: the first
// page of the block being freed is consumed entirely to
// replenish blockPool, and the remaining pageCount-1 pages are registered
// without attempting a merge (their buddies cannot be free, since the
// split that produced them is still held).
func freeWithEmptyPoolLocked(startPhys uintptr, pageCount uint64) {
	carvePoolLocked(startPhys)
	rest := startPhys + uintptr(mm.PageSize)
	remaining := pageCount - 1
	for remaining > 0 {
		order := maxAlignedOrder(rest, remaining)
		node := popPoolNodeLocked(rest)
		node.StartPhys = rest
		node.PageCount = 1 << order
		insertLocked(order, node)

		advance := uint64(1) << order
		rest += uintptr(advance) * uintptr(mm.PageSize)
		remaining -= advance
	}
}

// mergeAndInsertLocked runs the merge loop: while the block's buddy at
// the same order is also free, remove it and double the
// block, until maxOrder is reached or no buddy is found.
func mergeAndInsertLocked(block *PhysicalPageRange) {
	for {
		order, ok := orderOf(block.PageCount)
		if !ok || order >= maxOrder {
			break
		}

		buddyStart := block.StartPhys ^ (uintptr(mm.PageSize) << order)
		buddy := removeAtLocked(order, buddyStart)
		if buddy == nil {
			break
		}

		if buddyStart < block.StartPhys {
			block.StartPhys = buddyStart
		}
		block.PageCount *= 2
		pushPoolLocked(buddy)
	}

	order, _ := orderOf(block.PageCount)
	insertLocked(order, block)
}

// FreePagesCount returns the sum of pageCount*len(list) across every order.
func FreePagesCount() uint64 {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	var total uint64
	for order := uint(0); order <= maxOrder; order++ {
		for n := buddyTable[order]; n != nil; n = n.next {
			total += uint64(n.PageCount)
		}
	}
	return total
}
