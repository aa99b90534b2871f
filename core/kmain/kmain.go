// Package kmain sequences the boot-time bring-up of every core substrate
// collaborator: GDT/TSS, the straight map, the buddy page allocator, the
// Go runtime hooks, the IDT, the scheduler, and finally preemption. The
// size-class heap (package heap) is not initialized here.
package kmain

import (
	"corekernel/core/boot"
	"corekernel/core/gdt"
	"corekernel/core/goruntime"
	"corekernel/core/irq"
	"corekernel/core/kernel"
	"corekernel/core/kfmt"
	"corekernel/core/mm"
	"corekernel/core/mm/pmm"
	"corekernel/core/mm/vmm"
	"corekernel/core/sched"
	coresync "corekernel/core/sync"
)

// timerPeriodMS is the APIC tick period, derived from irq.TimerIntFreq
// (100 Hz -> 10ms).
const timerPeriodMS = 1000 / irq.TimerIntFreq

// maxBootRegions bounds the number of UEFI memory-map descriptors the
// bring-up path tracks directly; real firmware maps rarely exceed a few
// dozen entries, so this is comfortably generous without needing the heap
// (which does not exist yet at this point in boot).
const maxBootRegions = 64

// bumpAllocator is a minimal first-fit allocator over the raw UEFI memory
// map, used only to hand out the handful of physical pages InitStraightMap
// needs for its own page-table frames. It exists because of a bootstrap
// ordering constraint: the buddy allocator (package pmm) cannot be
// initialized until the straight map can translate its physical addresses,
// but the straight map needs fresh physical pages to build with. A single
// bump cursor suffices since this allocator never frees.
type bumpAllocator struct {
	regionStart [maxBootRegions]uintptr
	regionPages [maxBootRegions]uint64
	count       int

	curRegion int
	curPage   uint64
}

func newBumpAllocator(mm *boot.MemoryMap) *bumpAllocator {
	b := &bumpAllocator{}
	mm.VisitRegions(func(d *boot.MemoryDescriptor) bool {
		if !d.Type.Usable() || b.count >= maxBootRegions {
			return true
		}
		b.regionStart[b.count] = uintptr(d.PhysStart)
		b.regionPages[b.count] = d.PageCount
		b.count++
		return true
	})
	return b
}

// allocFrame hands out the next free page, advancing the cursor across
// regions as each is exhausted. Returns 0 on exhaustion.
func (b *bumpAllocator) allocFrame() uintptr {
	for b.curRegion < b.count {
		if b.curPage < b.regionPages[b.curRegion] {
			phys := b.regionStart[b.curRegion] + uintptr(b.curPage)*uintptr(mm.PageSize)
			b.curPage++
			return phys
		}
		b.curRegion++
		b.curPage = 0
	}
	return 0
}

// buddyRegions converts the same memory map into pmm.MemoryRegion values,
// adjusted so that every page already handed out by b is excluded —
// otherwise the buddy allocator and the straight-map construction would
// believe they both own the same physical pages.
func (b *bumpAllocator) buddyRegions() []pmm.MemoryRegion {
	out := make([]pmm.MemoryRegion, 0, b.count)
	for i := 0; i < b.count; i++ {
		start := b.regionStart[i]
		pages := b.regionPages[i]
		if i < b.curRegion {
			continue // fully consumed by the bump allocator
		}
		if i == b.curRegion {
			start += uintptr(b.curPage) * uintptr(mm.PageSize)
			pages -= b.curPage
		}
		if pages == 0 {
			continue
		}
		out = append(out, pmm.MemoryRegion{StartPhys: start, PageCount: pages})
	}
	return out
}

// relocateUEFIRuntime completes the UEFI-runtime virtual-address hand-off:
// once the straight map is live, every memory-map descriptor is annotated
// with its straight-mapped virtual address and handed back to the loader's
// SetVirtualAddressMap, retargeting runtime services into the kernel's own
// address space. A nil Runtime or MemoryMap means the loader offers no
// runtime services to relocate, which is not an error.
func relocateUEFIRuntime(h *boot.HandOff) {
	if h.Runtime == nil || h.MemoryMap == nil {
		return
	}

	if !h.MemoryMap.AssignVirtualStarts(vmm.PhysToVirt) {
		kernel.Panic(&kernel.Error{Module: "kmain", Message: "relocateUEFIRuntime: memory map entry has no straight-map translation"})
	}

	ok := h.Runtime.SetVirtualAddressMap(
		h.MemoryMap.TotalSize(),
		h.MemoryMap.DescriptorSize(),
		h.MemoryMap.DescriptorVersion(),
		h.MemoryMap.Base(),
	)
	if !ok {
		kernel.Panic(&kernel.Error{Module: "kmain", Message: "relocateUEFIRuntime: SetVirtualAddressMap failed"})
	}
}

// Kmain is the kernel's entry point, called by the rt0 trampoline in
// boot.go once the loader has handed off control and interrupts are still
// disabled. It never returns under normal operation: sched.Start() parks
// the boot task in a halt loop once preemption is live.
func Kmain(h *boot.HandOff) {
	gdt.Init()

	kernelImg := vmm.KernelImage{
		PhysStart: uintptr(h.KernelPhysStart),
		PhysEnd:   uintptr(h.KernelPhysEnd),
		VirtStart: uintptr(h.KernelVirtStart),
	}

	bump := newBumpAllocator(h.MemoryMap)
	vmm.InitStraightMap(kernelImg, bump.allocFrame)

	relocateUEFIRuntime(h)

	pmm.SetTranslator(vmm.PhysToVirt, vmm.VirtToPhys)
	pmm.Init(bump.buddyRegions())

	if err := goruntime.Init(); err != nil {
		kernel.Panic(err)
	}

	kfmt.Printf("corekernel: straight map and page allocator ready, %d pages free\n", pmm.FreePagesCount())

	istStack := pmm.Allocate(uint32(mm.DefaultStackPages))
	if istStack == nil {
		kernel.Panic(&kernel.Error{Module: "kmain", Message: "failed to allocate IST1 stack"})
	}
	istTop := uintptr(istStack) + uintptr(mm.DefaultStackPages)*uintptr(mm.PageSize)
	gdt.SetISTStack(1, istTop)

	irq.Init()

	sched.Init()
	coresync.SetSchedulerHooks(sched.Hooks())

	if h.PMTimer != nil {
		pm := &irq.PMTimer{Port: h.PMTimer.Port, Is32Bit: h.PMTimer.Is32Bit}
		irq.StartPreemption(pm, timerPeriodMS)
	}

	vmm.ClearIdentityMap()

	sched.Start()
}
