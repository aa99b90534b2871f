package sync

import "corekernel/core/cpu"

// cpuPauseFn, cpuInterruptsEnabledFn, cpu{Enable,Disable}InterruptsFn are
// swapped out by tests so the spinlock's busy-wait and IF-masking logic can
// be exercised without real hardware.
var (
	cpuPauseFn              = func() {}
	cpuInterruptsEnabledFn  = cpu.InterruptsEnabled
	cpuEnableInterruptsFn   = cpu.EnableInterrupts
	cpuDisableInterruptsFn  = cpu.DisableInterrupts
)
