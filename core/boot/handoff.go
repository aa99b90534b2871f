// Package boot describes the data the UEFI loader hands to the kernel entry
// point: the framebuffer descriptor, the UEFI memory map and the UEFI
// runtime-services system table. It is the narrow interface the core
// substrate uses to talk to the loader; parsing the rest of the loader's
// ACPI/PCI/AHCI payloads is out of scope and is left to collaborators this
// package does not know about.
package boot

import "unsafe"

// PixelFormat identifies how framebuffer pixels are encoded.
type PixelFormat uint8

const (
	// PixelFormatRGB packs pixels as 0xRRGGBB (most to least significant).
	PixelFormatRGB PixelFormat = iota
	// PixelFormatBGR packs pixels as 0xBBGGRR.
	PixelFormatBGR
	// PixelFormatBitmask means each color channel is described by a
	// separate bitmask; not used for diagnostic output.
	PixelFormatBitmask
	// PixelFormatBitOnly means no pixel access is available at all.
	PixelFormatBitOnly
)

// Framebuffer describes the linear framebuffer set up by the loader. Only
// RGB/BGR formats are used by the core substrate's diagnostic fault dump;
// the other formats are recorded but otherwise untouched here.
type Framebuffer struct {
	PixelFormat         PixelFormat
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelsPerScanline    uint32
	FrameBufferPhysAddr  uint64
}

// Usable reports whether the core fault-diagnostic path can address pixels
// directly in this framebuffer.
func (fb *Framebuffer) Usable() bool {
	return fb != nil && (fb.PixelFormat == PixelFormatRGB || fb.PixelFormat == PixelFormatBGR)
}

// MemoryType mirrors the subset of UEFI memory descriptor types the page
// allocator cares about; every other value is treated as unusable.
type MemoryType uint32

const (
	// MemoryTypeReservedOrOther covers every UEFI memory type that is not
	// explicitly usable below (e.g. ACPI, MMIO, PAL code). Never ingested
	// by the allocator.
	MemoryTypeReservedOrOther MemoryType = 0
	// MemoryTypeLoaderCode covers the loader's own image code.
	MemoryTypeLoaderCode MemoryType = 1
	// MemoryTypeLoaderData covers the loader's own image data.
	MemoryTypeLoaderData MemoryType = 2
	// MemoryTypeBootServicesCode is reclaimed once boot services exit.
	MemoryTypeBootServicesCode MemoryType = 3
	// MemoryTypeBootServicesData is reclaimed once boot services exit.
	MemoryTypeBootServicesData MemoryType = 4
	// MemoryTypeConventional is free RAM, never touched by firmware.
	MemoryTypeConventional MemoryType = 7
)

// Usable reports whether the page allocator should ingest a region of this
// type. Boot-services-code/data and conventional memory are all treated
// as usable once boot services have exited.
func (t MemoryType) Usable() bool {
	switch t {
	case MemoryTypeBootServicesCode, MemoryTypeBootServicesData, MemoryTypeConventional:
		return true
	default:
		return false
	}
}

// MemoryDescriptor is one entry of the UEFI memory map, as produced by
// GetMemoryMap and consumed by the page allocator and paging layer.
type MemoryDescriptor struct {
	Type      MemoryType
	_         uint32 // padding to match the UEFI descriptor's natural alignment
	PhysStart uint64
	VirtStart uint64
	PageCount uint64
	Attribute uint64
}

// MemoryMap is a loader-owned, contiguous array of MemoryDescriptor entries.
// The loader guarantees the entries are sorted by PhysStart.
type MemoryMap struct {
	descriptorSize    uintptr
	descriptorVersion uint32
	entries           unsafe.Pointer
	count             int
}

// NewMemoryMap wraps a raw UEFI memory map buffer. descriptorSize is the
// firmware-reported stride between entries (descriptors may carry vendor
// extension fields past MemoryDescriptor, so the stride is not always
// sizeof(MemoryDescriptor)). descriptorVersion is kept unchanged and
// reported by DescriptorVersion, for the caller that invokes
// SetVirtualAddressMap.
func NewMemoryMap(base unsafe.Pointer, descriptorSize uintptr, totalSize uintptr, descriptorVersion uint32) *MemoryMap {
	count := 0
	if descriptorSize > 0 {
		count = int(totalSize / descriptorSize)
	}
	return &MemoryMap{
		descriptorSize:    descriptorSize,
		descriptorVersion: descriptorVersion,
		entries:           base,
		count:             count,
	}
}

// descriptorAt returns a pointer to the i'th descriptor, unchecked.
func (m *MemoryMap) descriptorAt(i int) *MemoryDescriptor {
	base := uintptr(m.entries)
	return (*MemoryDescriptor)(unsafe.Pointer(base + uintptr(i)*m.descriptorSize))
}

// RegionVisitor is invoked by VisitRegions for each descriptor in the map.
// Returning false aborts the walk.
type RegionVisitor func(*MemoryDescriptor) bool

// VisitRegions invokes visitor for every descriptor in the map, in the
// firmware-provided (physical-address-sorted) order.
func (m *MemoryMap) VisitRegions(visitor RegionVisitor) {
	if m == nil {
		return
	}

	for i := 0; i < m.count; i++ {
		if !visitor(m.descriptorAt(i)) {
			return
		}
	}
}

// SetVirtualStart mutates entry i's VirtStart field in place. Used once the
// straight map is active so the retargeted descriptors can be handed back to
// SetVirtualAddressMap.
func (m *MemoryMap) SetVirtualStart(i int, virtStart uint64) {
	if m == nil || i < 0 || i >= m.count {
		return
	}
	m.descriptorAt(i).VirtStart = virtStart
}

// AssignVirtualStarts rewrites every descriptor's VirtStart to its
// straight-mapped virtual address via translate (normally vmm.PhysToVirt),
// completing the UEFI-runtime virtual-address hand-off. Returns false if any
// descriptor's PhysStart falls outside what translate can resolve, leaving
// descriptors already visited rewritten.
func (m *MemoryMap) AssignVirtualStarts(translate func(uintptr) (uintptr, bool)) bool {
	if m == nil {
		return true
	}
	for i := 0; i < m.count; i++ {
		entry := m.descriptorAt(i)
		virt, ok := translate(uintptr(entry.PhysStart))
		if !ok {
			return false
		}
		entry.VirtStart = uint64(virt)
	}
	return true
}

// DescriptorSize returns the firmware-reported stride between entries; the
// raw buffer must be walked with this stride rather than sizeof(MemoryDescriptor).
func (m *MemoryMap) DescriptorSize() uintptr {
	if m == nil {
		return 0
	}
	return m.descriptorSize
}

// DescriptorVersion returns the firmware-reported descriptor format version,
// passed through unchanged to SetVirtualAddressMap.
func (m *MemoryMap) DescriptorVersion() uint32 {
	if m == nil {
		return 0
	}
	return m.descriptorVersion
}

// Base returns the raw buffer backing the map, for handing back to
// SetVirtualAddressMap verbatim.
func (m *MemoryMap) Base() unsafe.Pointer {
	if m == nil {
		return nil
	}
	return m.entries
}

// TotalSize returns the byte length of the raw buffer backing the map.
func (m *MemoryMap) TotalSize() uintptr {
	if m == nil {
		return 0
	}
	return uintptr(m.count) * m.descriptorSize
}

// Len returns the number of descriptors in the map.
func (m *MemoryMap) Len() int {
	if m == nil {
		return 0
	}
	return m.count
}

// RuntimeServices is the narrow slice of the UEFI runtime-services system
// table that the paging layer needs: the ability to retarget runtime calls
// into the kernel's virtual address space. Everything else on the real
// table (console protocols, variable services, ...) is out of scope here.
type RuntimeServices struct {
	// SetVirtualAddressMap is the loader-supplied entry point, called
	// exactly once after the straight map is established. It returns
	// false on failure, matching the EFI_STATUS != EFI_SUCCESS case.
	SetVirtualAddressMap func(mapSize, descriptorSize uintptr, descriptorVersion uint32, virtualMap unsafe.Pointer) bool
}

// PMTimerInfo carries the two ACPI FADT fields the timer-calibration path
// (package irq) needs: the PM timer's I/O port and counter width. ACPI
// table discovery and parsing happen in the loader, out of scope here
// — by the time HandOff reaches the kernel, the FADT has
// already been found and these two fields extracted.
type PMTimerInfo struct {
	Port    uint16
	Is32Bit bool
}

// HandOff bundles everything the loader passes to the kernel entry point.
type HandOff struct {
	Framebuffer *Framebuffer
	MemoryMap   *MemoryMap
	Runtime     *RuntimeServices
	PMTimer     *PMTimerInfo

	// KernelPhysStart/KernelPhysEnd bound the running kernel image in
	// physical memory, and KernelVirtStart is the loader-chosen
	// high-canonical load address; together they let the straight map
	// skip re-mapping the kernel's own pages.
	KernelPhysStart uint64
	KernelPhysEnd   uint64
	KernelVirtStart uint64
}
