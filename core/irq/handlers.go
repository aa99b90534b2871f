package irq

import (
	"corekernel/core/kernel"
	"corekernel/core/kfmt"
)

var exceptionNames = map[InterruptNumber]string{
	DivideByZero:               "divide by zero",
	Debug:                      "debug",
	NMI:                        "non-maskable interrupt",
	Breakpoint:                 "breakpoint",
	Overflow:                   "overflow",
	BoundRangeExceeded:         "bound range exceeded",
	InvalidOpcode:              "invalid opcode",
	DeviceNotAvailable:         "device not available",
	DoubleFault:                "double fault",
	InvalidTSS:                 "invalid TSS",
	SegmentNotPresent:          "segment not present",
	StackSegmentFault:          "stack segment fault",
	GPFException:               "general protection fault",
	PageFaultException:         "page fault",
	FloatingPointException:     "x87 floating point exception",
	AlignmentCheck:             "alignment check",
	MachineCheck:               "machine check",
	SIMDFloatingPointException: "SIMD floating point exception",
	VirtualizationException:   "virtualization exception",
}

// defaultFaultHandler is installed on every exception vector that no caller
// has overridden via HandleInterrupt: it dumps the register frame and halts
// for good via kernel.Panic.
func defaultFaultHandler(vec InterruptNumber, regs *Registers) {
	name, ok := exceptionNames[vec]
	if !ok {
		name = "unknown"
	}
	kfmt.Printf("\nunhandled exception %d (%s) at RIP=%x\n", uint8(vec), name, regs.RIP)
	regs.Dump()
	kernel.Panic(&kernel.Error{Module: "irq", Message: "unhandled CPU exception: " + name})
}

// installFaultHandlers is a hook point: by default every exception vector
// falls through to defaultFaultHandler via dispatchInterrupt's nil check, so
// there is nothing to register up front. Kept as a named step in Init so a
// future caller has an obvious place to pre-register recoverable handlers
// (e.g. a page-fault handler that grows a stack) without touching Init's
// control flow.
func installFaultHandlers() {}
