// Package irq installs the IDT, routes CPU exceptions to a shared
// diagnostic-and-halt handler, and drives the APIC timer that preempts
// tasks, including APIC MMIO programming and PM-timer calibration for
// UEFI systems.
package irq

import (
	"corekernel/core/kfmt"
)

// Registers is a snapshot of every general-purpose register plus the
// IRETQ frame, captured by the shared exception entry stub before a
// handler runs. This is the frame type used for ordinary
// CPU exceptions; the timer vector uses sched.CPUContext instead.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// Info carries the CPU-pushed error code for vectors that have one
	// (DF, TS, NP, SS, GP, PF, AC); zero otherwise.
	Info uint64

	// The IRETQ frame.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Dump prints a human-readable register dump to the current kfmt output
// sink, used by the fault handlers' diagnostic frame.
func (r *Registers) Dump() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Printf("RBP = %16x\n", r.RBP)
	kfmt.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Printf("\n")
	kfmt.Printf("RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Printf("RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Printf("RFL = %16x Info = %16x\n", r.RFlags, r.Info)
}

// InterruptNumber identifies an IDT vector.
type InterruptNumber uint8

const (
	DivideByZero               = InterruptNumber(0)
	Debug                      = InterruptNumber(1)
	NMI                        = InterruptNumber(2)
	Breakpoint                 = InterruptNumber(3)
	Overflow                   = InterruptNumber(4)
	BoundRangeExceeded         = InterruptNumber(5)
	InvalidOpcode              = InterruptNumber(6)
	DeviceNotAvailable         = InterruptNumber(7)
	DoubleFault                = InterruptNumber(8)
	InvalidTSS                 = InterruptNumber(10)
	SegmentNotPresent          = InterruptNumber(11)
	StackSegmentFault          = InterruptNumber(12)
	GPFException               = InterruptNumber(13)
	PageFaultException         = InterruptNumber(14)
	FloatingPointException     = InterruptNumber(16)
	AlignmentCheck             = InterruptNumber(17)
	MachineCheck               = InterruptNumber(18)
	SIMDFloatingPointException = InterruptNumber(19)
	VirtualizationException    = InterruptNumber(20)

	// TimerVector is the APIC timer's programmed vector.
	TimerVector = InterruptNumber(0x40)
)

// hasErrorCode reports whether the CPU pushes an error code for vec.
// Handlers for DF, TS, NP, SS, GP, PF and AC receive the code as part of
// the frame; every other vector pushes no code at all.
func hasErrorCode(vec InterruptNumber) bool {
	switch vec {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault, GPFException, PageFaultException, AlignmentCheck:
		return true
	default:
		return false
	}
}
