// Package vmm implements the paging layer: 4-level page table types and
// the straight (direct) map of all physical memory at a fixed
// high-canonical base, built eagerly rather than mapped lazily page by
// page.
package vmm

import "corekernel/core/mm"

// PageTableEntryFlag describes one bit of a PageEntry.
type PageTableEntryFlag uintptr

// Flag bit positions match the x86-64 page-table entry format.
const (
	FlagPresent PageTableEntryFlag = 1 << 0
	FlagRW      PageTableEntryFlag = 1 << 1
	FlagUser    PageTableEntryFlag = 1 << 2
	FlagPWT     PageTableEntryFlag = 1 << 3
	FlagPCD     PageTableEntryFlag = 1 << 4
	FlagAccess  PageTableEntryFlag = 1 << 5
	FlagHuge    PageTableEntryFlag = 1 << 7 // PS: 2 MiB page at the PD level
	FlagGlobal  PageTableEntryFlag = 1 << 8
	FlagNX      PageTableEntryFlag = 1 << 63
)

const (
	physAddrShift = 12
	physAddrMask  = PageTableEntryFlag(0x000f_ffff_ffff_f000)
)

// PageEntry is a single 64-bit page-table entry.
type PageEntry uintptr

// HasFlags returns true if every bit in flags is set.
func (e PageEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uintptr(e)&uintptr(flags) == uintptr(flags)
}

// SetFlags ORs flags into the entry.
func (e *PageEntry) SetFlags(flags PageTableEntryFlag) {
	*e = PageEntry(uintptr(*e) | uintptr(flags))
}

// ClearFlags clears flags from the entry.
func (e *PageEntry) ClearFlags(flags PageTableEntryFlag) {
	*e = PageEntry(uintptr(*e) &^ uintptr(flags))
}

// PhysAddr returns the physical address this entry points to: either the
// next-level table (P=1, PS=0) or, at the PD level with PS=1, the mapped
// 2 MiB page.
func (e PageEntry) PhysAddr() uintptr {
	return uintptr(e) & uintptr(physAddrMask)
}

// SetPhysAddr sets the next-table/huge-page physical address, leaving the
// flag bits untouched.
func (e *PageEntry) SetPhysAddr(phys uintptr) {
	*e = PageEntry((uintptr(*e) &^ uintptr(physAddrMask)) | (phys & uintptr(physAddrMask)))
}

// PageTable is one aligned 4 KiB array of 512 PageEntries.
type PageTable struct {
	Entries [512]PageEntry
}

// VirtualAddress is a 64-bit canonical address with helpers to extract the
// PML4/PDP/PD/PT indices and page offset.
type VirtualAddress uintptr

// Index helpers: bits 39-47 (PML4), 30-38 (PDP), 21-29 (PD), 12-20 (PT).
func (v VirtualAddress) PML4Index() uintptr { return (uintptr(v) >> 39) & 0x1ff }
func (v VirtualAddress) PDPIndex() uintptr  { return (uintptr(v) >> 30) & 0x1ff }
func (v VirtualAddress) PDIndex() uintptr   { return (uintptr(v) >> 21) & 0x1ff }
func (v VirtualAddress) PTIndex() uintptr   { return (uintptr(v) >> 12) & 0x1ff }

// Offset returns the low 12 bits: the byte offset within the final page.
func (v VirtualAddress) Offset() uintptr { return uintptr(v) & uintptr(mm.PageSize-1) }
