package irq

import (
	"unsafe"

	"corekernel/core/cpu"
	"corekernel/core/gdt"
)

// idtEntry is a raw 16-byte interrupt-gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	istFlags   uint16 // bits 0-2: IST index, bits 8-11: gate type, bit 15: present
	offsetMid  uint16
	offsetHigh uint32
	_          uint32
}

const (
	gateTypeInterrupt = 0xE << 8
	gatePresent       = 1 << 15
)

func newIDTEntry(handlerAddr uintptr, istIndex uint8) idtEntry {
	return idtEntry{
		offsetLow:  uint16(handlerAddr),
		selector:   gdt.CodeSelector,
		istFlags:   uint16(istIndex&0x7) | gateTypeInterrupt | gatePresent,
		offsetMid:  uint16(handlerAddr >> 16),
		offsetHigh: uint32(handlerAddr >> 32),
	}
}

var idtTable [256]idtEntry

// pseudoDescriptor mirrors gdt's LGDT/LIDT operand holder: a 16-bit limit
// followed directly by a 64-bit linear base. Go aligns base to 8 bytes, so
// the leading padding moves limit to offset 6; the operand starts at &limit.
type pseudoDescriptor struct {
	_     [3]uint16
	limit uint16
	base  uint64
}

// handlerTable maps an IDT vector to the Go-level handler invoked by
// dispatchInterrupt once the shared assembly entry stub has built a
// Registers frame. Vector TimerVector is special-cased: its
// own entry stub builds a sched.CPUContext instead and calls timerTick
// directly, bypassing this table entirely.
var handlerTable [256]func(*Registers)

// HandleInterrupt registers fn as the handler for vec. Calling it twice for
// the same vector replaces the previous handler.
func HandleInterrupt(vec InterruptNumber, fn func(*Registers)) {
	handlerTable[vec] = fn
}

// interruptGateEntries is the set of 256 tiny assembly trampolines — one per
// IDT vector — that push a Registers frame (synthesizing a zero error code
// for vectors that don't have one) and call dispatchInterrupt. Implemented
// in hand-written assembly rather than shown here; Init below points
// every idtTable slot at the trampoline for its own vector.
func interruptGateEntries() [256]uintptr

// timerEntry is the APIC-timer-specific assembly trampoline: it saves the
// full CPUContext (not a Registers frame), runs on IST1, and calls
// timerTick with a pointer to the saved context before EOI/IRETQ.
func timerEntry() uintptr

// Init builds the 256-entry IDT, installs the diagnostic handler on every
// exception vector that doesn't already have one registered, wires the
// timer vector, and loads the table. Must run after
// gdt.Init, since IST indices reference TSS state that only exists once the
// TSS is live.
func Init() {
	entries := interruptGateEntries()
	for vec := 0; vec < 256; vec++ {
		ist := uint8(0)
		switch InterruptNumber(vec) {
		case DoubleFault, PageFaultException, NMI, MachineCheck:
			ist = 1
		}
		idtTable[vec] = newIDTEntry(entries[vec], ist)
	}
	idtTable[TimerVector] = newIDTEntry(timerEntry(), 1)

	installFaultHandlers()

	desc := pseudoDescriptor{
		limit: uint16(len(idtTable)*16 - 1),
		base:  uint64(uintptr(unsafe.Pointer(&idtTable[0]))),
	}
	cpu.LoadIDT(uintptr(unsafe.Pointer(&desc.limit)))
}

// dispatchInterrupt is invoked by every non-timer entry stub in
// interruptGateEntries after it has built the Registers frame on the
// current stack. It is ordinary Go code, not assembly: the stub's only job
// is to marshal raw stack state into the Registers struct and call here.
//
//go:nosplit
func dispatchInterrupt(vec uint8, regs *Registers) {
	if h := handlerTable[vec]; h != nil {
		h(regs)
		return
	}
	defaultFaultHandler(InterruptNumber(vec), regs)
}
