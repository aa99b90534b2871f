package vmm

import (
	"corekernel/core/cpu"
	"corekernel/core/kernel"
	"corekernel/core/mm"
)

const (
	gib = uintptr(1) << 30
	mib = uintptr(1) << 21 // 2 MiB, the huge-page size used by the straight map
)

// FrameAllocFn supplies one fresh, zeroed-on-demand physical page for
// building straight-map page tables. During boot this is a tiny bump
// allocator over the raw UEFI memory map, because the buddy allocator
// (package pmm) is itself brought up only after the straight map exists —
// pmm.Init needs PhysToVirt to hand out straight-mapped pointers.
// It returns the physical address of the page, or 0 on exhaustion.
type FrameAllocFn func() uintptr

// KernelImage records the physical extent of the running kernel image so
// the straight map can skip re-mapping it writable/aliased.
type KernelImage struct {
	PhysStart, PhysEnd uintptr // [PhysStart, PhysEnd)
	VirtStart          uintptr // the loader-chosen high-canonical load address
}

var (
	kernelImage KernelImage

	// readCR3Fn/flushTLBFn are swapped out by tests; production
	// code always goes through the bodyless cpu primitives.
	readCR3Fn  = cpu.ReadCR3
	flushTLBFn = cpu.FlushTLBEntry

	straightMapReady bool
)

// currentPML4 returns the PageTable currently loaded in CR3, accessed via
// its physical address. This is only valid while the loader's identity
// mapping at PML4[0] is still intact, i.e. before ClearIdentityMap runs.
func currentPML4() *PageTable {
	return (*PageTable)(identityPtr(uintptr(readCR3Fn())))
}

// InitStraightMap builds the PDP and 512 PDs of the straight map, mapping
// physical [0, STRAIGHT_MAP_SIZE) to virtual
// [STRAIGHT_MAP_BASE, STRAIGHT_MAP_BASE+STRAIGHT_MAP_SIZE) with 2 MiB
// pages, skipping the 2 MiB-aligned region containing the kernel image. If
// the kernel's physical end is not 2 MiB-aligned, the containing region is
// instead mapped through a PT at 4 KiB granularity with only the
// past-kernel pages marked present. Must run while the loader's identity
// mapping is still active, since the page tables themselves are reached by
// physical address during construction.
func InitStraightMap(img KernelImage, allocFrame FrameAllocFn) {
	kernelImage = img

	pml4 := currentPML4()

	pdpPhys := allocFrame()
	if pdpPhys == 0 {
		kernel.Panic(&kernel.Error{Module: "vmm", Message: "InitStraightMap: out of memory for PDP"})
	}
	zeroPhysPage(pdpPhys)
	pdp := (*PageTable)(identityPtr(pdpPhys))

	idx := VirtualAddress(mm.StraightMapBase).PML4Index()
	pml4.Entries[idx] = 0
	pml4.Entries[idx].SetPhysAddr(pdpPhys)
	pml4.Entries[idx].SetFlags(FlagPresent | FlagRW)

	kernelImageFirstMiB := alignDown(img.PhysStart, mib)
	kernelImageLastMiB := alignDown(img.PhysEnd-1, mib)

	for pdIdx := uintptr(0); pdIdx < 512; pdIdx++ {
		pdPhys := allocFrame()
		if pdPhys == 0 {
			kernel.Panic(&kernel.Error{Module: "vmm", Message: "InitStraightMap: out of memory for PD"})
		}
		zeroPhysPage(pdPhys)

		pdp.Entries[pdIdx] = 0
		pdp.Entries[pdIdx].SetPhysAddr(pdPhys)
		pdp.Entries[pdIdx].SetFlags(FlagPresent | FlagRW)

		pd := (*PageTable)(identityPtr(pdPhys))
		gibBase := pdIdx * gib

		for pdeIdx := uintptr(0); pdeIdx < 512; pdeIdx++ {
			regionStart := gibBase + pdeIdx*mib
			if regionStart < kernelImageFirstMiB || regionStart > kernelImageLastMiB {
				pd.Entries[pdeIdx] = 0
				pd.Entries[pdeIdx].SetPhysAddr(regionStart)
				pd.Entries[pdeIdx].SetFlags(FlagPresent | FlagRW | FlagHuge)
				continue
			}

			if regionStart == kernelImageFirstMiB && alignUp(img.PhysEnd, mib) == img.PhysEnd {
				// Kernel occupies exactly this 2 MiB region and
				// ends on a 2 MiB boundary: skip it entirely.
				continue
			}

			// The kernel's tail does not fill a whole 2 MiB
			// region: map the remainder at 4 KiB granularity.
			ptPhys := allocFrame()
			if ptPhys == 0 {
				kernel.Panic(&kernel.Error{Module: "vmm", Message: "InitStraightMap: out of memory for PT"})
			}
			zeroPhysPage(ptPhys)

			pd.Entries[pdeIdx] = 0
			pd.Entries[pdeIdx].SetPhysAddr(ptPhys)
			pd.Entries[pdeIdx].SetFlags(FlagPresent | FlagRW)

			pt := (*PageTable)(identityPtr(ptPhys))
			for pteIdx := uintptr(0); pteIdx < 512; pteIdx++ {
				pageAddr := regionStart + pteIdx*uintptr(mm.PageSize)
				if pageAddr < img.PhysEnd {
					pt.Entries[pteIdx] = 0
					continue
				}
				pt.Entries[pteIdx] = 0
				pt.Entries[pteIdx].SetPhysAddr(pageAddr)
				pt.Entries[pteIdx].SetFlags(FlagPresent | FlagRW)
			}
		}
	}

	straightMapReady = true
}

// ClearIdentityMap removes the loader's identity mapping at PML4[0], once
// the straight map and the UEFI runtime virtual-address hand-off are both
// active.
func ClearIdentityMap() {
	pml4 := (*PageTable)(identityPtr(uintptr(readCR3Fn())))
	pml4.Entries[0] = 0
	flushTLBFn(0)
}

// PhysToVirt returns the straight-mapped virtual address for phys, or false
// if phys lies outside the mapped range. The comparison is strict
// (< STRAIGHT_MAP_SIZE): a region of size N covers offsets [0, N), so
// phys == N is one byte past the mapped range.
func PhysToVirt(phys uintptr) (uintptr, bool) {
	if phys >= kernelImage.PhysStart && phys < kernelImage.PhysEnd {
		return kernelImage.VirtStart + (phys - kernelImage.PhysStart), true
	}
	if phys < mm.StraightMapSize {
		return mm.StraightMapBase + phys, true
	}
	return 0, false
}

// VirtToPhys reverses PhysToVirt, covering both the straight map range and
// the kernel image's own high-canonical load range.
func VirtToPhys(virt uintptr) (uintptr, bool) {
	if virt >= kernelImage.VirtStart && virt < kernelImage.VirtStart+(kernelImage.PhysEnd-kernelImage.PhysStart) {
		return kernelImage.PhysStart + (virt - kernelImage.VirtStart), true
	}
	if virt >= mm.StraightMapBase && virt < mm.StraightMapBase+mm.StraightMapSize {
		return virt - mm.StraightMapBase, true
	}
	return 0, false
}

func alignDown(v, align uintptr) uintptr { return v &^ (align - 1) }
func alignUp(v, align uintptr) uintptr   { return (v + align - 1) &^ (align - 1) }

func zeroPhysPage(phys uintptr) {
	kernel.Memset(uintptr(identityPtr(phys)), 0, uintptr(mm.PageSize))
}
