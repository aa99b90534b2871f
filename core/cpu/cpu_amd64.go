// Package cpu exposes the primitive x86-64 CPU operations the rest of the
// kernel is built on: interrupt masking, descriptor-table loads, control
// register access, port I/O and CPUID. The functions declared here without
// a Go body are implemented in hand-written assembly linked by symbol name;
// that assembly is not part of this repository, so the package does not
// build on its own.
package cpu

var (
	// cpuidFn is swapped out by tests; production code always calls ID.
	cpuidFn = ID
)

// EnableInterrupts sets the IF flag (STI).
func EnableInterrupts()

// DisableInterrupts clears the IF flag (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// ReadFlags returns the current value of RFLAGS.
func ReadFlags() uint64

// InterruptsEnabled reports whether IF is currently set in RFLAGS.
func InterruptsEnabled() bool {
	const ifFlag = uint64(1) << 9
	return ReadFlags()&ifFlag != 0
}

// FlushTLBEntry flushes the TLB entry that caches the translation for
// virtAddr (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// WriteCR3 loads a new value into CR3, switching the active page table root
// and flushing all non-global TLB entries.
func WriteCR3(physAddr uint64)

// ReadCR3 returns the physical address currently loaded in CR3.
func ReadCR3() uint64

// ReadCR2 returns the faulting linear address recorded by the last page
// fault.
func ReadCR2() uint64

// SwitchPDT sets the root page table directory to physAddr and flushes the
// TLB. It is a semantically-named wrapper over WriteCR3 used by the paging
// layer.
func SwitchPDT(physAddr uintptr) {
	WriteCR3(uint64(physAddr))
}

// ActivePDT returns the physical address of the currently active page table
// directory.
func ActivePDT() uintptr {
	return uintptr(ReadCR3())
}

// LoadGDT installs a new Global Descriptor Table given the address of a
// 10-byte pseudo-descriptor (2-byte limit, 8-byte base) and reloads CS/SS/DS
// from the supplied selectors.
func LoadGDT(gdtPseudoDescriptor uintptr, codeSelector, dataSelector uint16)

// LoadIDT installs a new Interrupt Descriptor Table given the address of a
// 10-byte pseudo-descriptor.
func LoadIDT(idtPseudoDescriptor uintptr)

// LoadTR loads the Task Register with the supplied GDT selector (LTR).
func LoadTR(selector uint16)

// Outb writes a byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// Outl writes a 32-bit word to the given I/O port.
func Outl(port uint16, value uint32)

// Inl reads a 32-bit word from the given I/O port.
func Inl(port uint16) uint32

// ID executes CPUID with EAX=leaf and returns the resulting EAX, EBX, ECX
// and EDX register values.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on a GenuineIntel CPU.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
