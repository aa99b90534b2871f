// Package goruntime patches the Go runtime's low-level memory hooks so
// that ordinary Go features — heap allocation, maps, interfaces — become
// usable once this package's Init runs. The replacement hooks
// (sysReserve/sysMap/sysAlloc/sysFree/nanotime/getRandomData) carry
// //go:redirect-from pragmas, which the Go toolchain itself ignores:
// pointing the runtime's own symbols at them takes a post-link patch step
// that is not part of this repository. This kernel's straight map (package vmm) already covers every physical
// page up front, so "reserve" and "commit" collapse into a single
// pmm.Allocate call rather than a lazy reserve-then-map sequence.
package goruntime

import (
	"unsafe"

	"corekernel/core/kernel"
	"corekernel/core/mm"
	"corekernel/core/mm/pmm"
)

var (
	allocPagesFn = pmm.Allocate
	freePagesFn  = pmm.Free

	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	prngSeed = 0xdeadc0de
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// pagesFor rounds size up to a page count the buddy allocator accepts: a
// power of two in [1, 2^MaxOrder].
func pagesFor(size uintptr) uint32 {
	pages := (size + uintptr(mm.PageSize) - 1) / uintptr(mm.PageSize)
	if pages == 0 {
		pages = 1
	}
	order := uint32(0)
	for uint32(1)<<order < uint32(pages) {
		order++
	}
	return 1 << order
}

// sysReserve replaces runtime.sysReserve. Because the straight map already
// covers all physical memory, "reserving" address space without committing
// physical pages is not meaningful here; this simply allocates and zeroes
// the pages up front.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	ptr := allocPagesFn(pagesFor(size))
	if ptr == nil {
		kernel.Panic(&kernel.Error{Module: "goruntime", Message: "sysReserve: out of memory"})
	}
	kernel.Memset(uintptr(ptr), 0, uintptr(pagesFor(size))*uintptr(mm.PageSize))
	*reserved = true
	return ptr
}

// sysMap replaces runtime.sysMap. The pages backing addr were already
// committed by sysReserve (straight map semantics), so this only updates
// the runtime's memory-stats counter.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(addr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		kernel.Panic(&kernel.Error{Module: "goruntime", Message: "sysMap called on an unreserved region"})
	}
	mSysStatInc(sysStat, uintptr(pagesFor(size))*uintptr(mm.PageSize))
	return addr
}

// sysAlloc replaces runtime.sysAlloc: reserve-and-commit in one step.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	ptr := allocPagesFn(pagesFor(size))
	if ptr == nil {
		return nil
	}
	mSysStatInc(sysStat, uintptr(pagesFor(size))*uintptr(mm.PageSize))
	return ptr
}

// sysFree replaces runtime.sysFree.
//
//go:redirect-from runtime.sysFree
//go:nosplit
func sysFree(addr unsafe.Pointer, size uintptr, sysStat *uint64) {
	freePagesFn(addr, pagesFor(size))
}

// nanotime replaces runtime.nanotime. A real monotonic clock needs the PM
// timer or the APIC's calibrated counter (package irq); until that
// collaborator is wired in here this returns a monotonically increasing
// but otherwise meaningless tick.
var nanotimeCounter uint64

//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	nanotimeCounter++
	return nanotimeCounter
}

// getRandomData replaces runtime.getRandomData. No hardware RNG source is
// wired in the core substrate, so a simple LCG stands in, exactly as in the
// teacher.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := range r {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables heap allocation, map primitives and interfaces by running
// the runtime's own initialization routines against the redirected hooks
// above. Must run once, after the straight map and the buddy allocator are
// both up.
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()
	modulesInitFn()
	typeLinksInitFn()
	itabsInitFn()
	return nil
}

func init() {
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)
	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	sysFree(zeroPtr, 0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
