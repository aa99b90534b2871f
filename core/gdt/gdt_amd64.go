// Package gdt builds the flat GDT and the TSS required before the IDT can be
// loaded: a long-mode code/data segment pair plus a TSS descriptor carrying
// the per-privilege-level and per-IST stack pointers used by the interrupt
// gates installed in package irq.
package gdt

import (
	"unsafe"

	"corekernel/core/cpu"
)

// segment descriptor access-byte flags, expressed in the x86 manual's bit
// positions (access byte is bits 40-47 of an 8-byte descriptor).
const (
	flagPresent    = 1 << 7
	flagDescSystem = 1 << 4 // 0 = system (TSS/LDT), 1 = code/data
	flagExecutable = 1 << 3
	flagRW         = 1 << 1 // readable (code) / writable (data)

	// flagLongMode marks a 64-bit code segment; flagGranularity4K scales
	// the limit field by 4K. Both live in the flags nibble (bits 52-55).
	flagLongMode      = 1 << 1
	flagGranularity4K = 1 << 3

	// TSS descriptor type in the access byte's low nibble.
	typeTSSAvailable = 0x9
)

// selector indices. Each descriptor is 8 bytes wide except the 16-byte TSS
// descriptor, which occupies two slots.
const (
	nullSelector = 0
	codeSelector = 1 << 3
	dataSelector = 2 << 3
	tssSelector  = 3 << 3
)

// CodeSelector and DataSelector are exported so package irq can populate the
// CS/SS fields of a task's CPUContext and IDT gates without redefining the
// flat GDT's layout.
const (
	CodeSelector = codeSelector
	DataSelector = dataSelector
)

// descriptor is a raw 8-byte GDT entry, built up field by field instead of
// via a packed struct so the bit layout stays visible at the call site.
type descriptor uint64

func newDescriptor(limit uint32, base uint32, access uint8, flags uint8) descriptor {
	d := uint64(limit & 0xffff)
	d |= (uint64(base) & 0xffffff) << 16
	d |= uint64(access) << 40
	d |= (uint64(limit>>16) & 0xf) << 48
	d |= (uint64(flags) & 0xf) << 52
	d |= (uint64(base>>24) & 0xff) << 56
	return descriptor(d)
}

// tss is the 64-bit task state segment. Only the fields the kernel actually
// uses are non-zero: RSP0 (ring-0 stack loaded on a privilege-level change)
// and the seven IST stack pointers used by fault handlers that must not
// run on a potentially corrupt stack.
type tss struct {
	_    uint32
	rsp  [3]uint64
	_    uint64
	ist  [7]uint64
	_    uint64
	_    uint16
	iomapBase uint16
}

const tssSize = 104 // sizeof(tss) sans padding quirks; matches the x86-64 manual's layout

var (
	gdtTable [5]descriptor // null, code, data, tss-low, tss-high
	theTSS   tss

	// loadGDTFn/loadTRFn are swapped out by tests; production code always
	// goes through cpu's bodyless primitives.
	loadGDTFn = cpu.LoadGDT
	loadTRFn  = cpu.LoadTR
)

// Init builds the flat GDT plus the TSS descriptor and loads both onto the
// CPU. It must run before irq.Init, since the IDT's IST fields reference
// stacks that only exist once the TSS is live.
func Init() {
	gdtTable[0] = newDescriptor(0, 0, 0, 0)
	gdtTable[1] = newDescriptor(0xfffff, 0,
		flagPresent|flagDescSystem|flagExecutable|flagRW,
		flagLongMode|flagGranularity4K,
	)
	gdtTable[2] = newDescriptor(0xfffff, 0,
		flagPresent|flagDescSystem|flagRW,
		flagGranularity4K,
	)

	base := uint64(uintptr(unsafe.Pointer(&theTSS)))
	low := newDescriptor(tssSize-1, uint32(base), flagPresent|typeTSSAvailable, 0)
	high := descriptor(base >> 32)
	gdtTable[3] = low
	gdtTable[4] = high

	desc := pseudoDescriptor{
		limit: uint16(len(gdtTable)*8 - 1),
		base:  uint64(uintptr(unsafe.Pointer(&gdtTable[0]))),
	}
	loadGDTFn(uintptr(unsafe.Pointer(&desc.limit)), codeSelector, dataSelector)
	loadTRFn(tssSelector)
}

// SetKernelStack updates the ring-0 stack pointer loaded on every privilege
// transition from user mode into the kernel. No code in this tree calls it,
// so RSP0 stays zero.
func SetKernelStack(rsp0 uintptr) {
	theTSS.rsp[0] = uint64(rsp0)
}

// SetISTStack assigns stack index (1-7, matching the hardware IST numbering)
// the given top-of-stack address. index 0 is not a valid IST slot and is
// silently ignored.
func SetISTStack(index uint8, top uintptr) {
	if index < 1 || index > 7 {
		return
	}
	theTSS.ist[index-1] = uint64(top)
}

// pseudoDescriptor holds the LGDT/LIDT operand: a 16-bit limit followed
// directly by a 64-bit linear base address. Go aligns base to 8 bytes, so
// the leading padding moves limit to offset 6; the operand starts at &limit.
type pseudoDescriptor struct {
	_     [3]uint16
	limit uint16
	base  uint64
}
