package kernel

import (
	"corekernel/core/cpu"
	"corekernel/core/kfmt"
)

var (
	// cpuHaltFn is swapped out by tests; production code always calls
	// cpu.Halt.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints the supplied error (if any) to the console and halts the
// CPU with interrupts disabled. Panic never returns; it is
// the sole path for every unrecoverable condition: violated invariants,
// UEFI hand-off failures, and the diagnostic-and-halt policy shared by
// every CPU exception vector.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	default:
		err = errRuntimePanic
	}

	kfmt.Printf("\n-----------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** kernel panic: system halted ***")
	kfmt.Printf("\n-----------------------------------\n")

	cpu.DisableInterrupts()
	cpuHaltFn()
}
