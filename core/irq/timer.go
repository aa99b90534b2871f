package irq

import "corekernel/core/sched"

// TimerIntFreq and TaskSwitchFreq split the timer interrupt frequency from
// the scheduling quantum: the APIC fires TimerVector at TimerIntFreq Hz (for
// future wall-clock use by goruntime.nanotime), but the scheduler only
// rotates at TaskSwitchFreq Hz.
const (
	TimerIntFreq   = 100
	TaskSwitchFreq = 2
)

// ticksPerSwitch is the derived tick divisor: the scheduler rotates every
// ticksPerSwitch-th tick, so the effective task quantum is
// ticksPerSwitch * the programmed tick period.
const ticksPerSwitch = TimerIntFreq / TaskSwitchFreq

// tickCount is incremented once per timer interrupt; exposed for tests and
// for a future wall-clock collaborator (goruntime.nanotime could be wired
// to it once this package is live).
var tickCount uint64

// switchFn is swapped out by tests; production code always calls
// sched.Switch.
var switchFn = sched.Switch

// sendEOIFn is swapped out by tests, since the real implementation writes
// to the local APIC's fixed MMIO address and has no meaning off real
// hardware.
var sendEOIFn = sendEOI

// TickCount returns the number of timer interrupts handled since boot.
func TickCount() uint64 {
	return tickCount
}

// timerTick is called by timerEntry's assembly trampoline with ctx pointing
// at the interrupted task's freshly-saved CPUContext. It always
// acknowledges the interrupt, but only hands control to the scheduler
// every ticksPerSwitch-th tick — on a switching tick this may resume a
// different task entirely, in which case timerTick itself never returns to
// its caller.
//
//go:nosplit
func timerTick(ctx *sched.CPUContext) {
	tickCount++
	sendEOIFn()
	if tickCount%ticksPerSwitch == 0 {
		switchFn(ctx)
	}
}

// StartPreemption calibrates the APIC timer against the PM timer and arms
// it to fire TimerVector every periodMS milliseconds, beginning preemptive
// scheduling. Must run after gdt.Init and irq.Init (the IDT
// must already route TimerVector to timerEntry) and after sched.Init.
func StartPreemption(pm *PMTimer, periodMS uint32) {
	calibrateAPICTimer(pm)
	startAPICTimer(periodMS)
}
