package irq

import (
	"testing"

	"corekernel/core/sched"
)

func resetHandlerTable() {
	for i := range handlerTable {
		handlerTable[i] = nil
	}
}

func TestHandleInterruptDispatchesRegisteredHandler(t *testing.T) {
	resetHandlerTable()
	t.Cleanup(resetHandlerTable)

	var got *Registers
	HandleInterrupt(Breakpoint, func(r *Registers) { got = r })

	regs := &Registers{RIP: 0x1234}
	dispatchInterrupt(uint8(Breakpoint), regs)

	if got != regs {
		t.Fatal("expected the registered handler to receive the dispatched Registers pointer")
	}
}

func TestHasErrorCodeMatchesVectorsWithCPUPushedCode(t *testing.T) {
	withCode := []InterruptNumber{DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault, GPFException, PageFaultException, AlignmentCheck}
	for _, v := range withCode {
		if !hasErrorCode(v) {
			t.Errorf("expected vector %d to carry an error code", v)
		}
	}
	without := []InterruptNumber{DivideByZero, Breakpoint, Overflow, InvalidOpcode}
	for _, v := range without {
		if hasErrorCode(v) {
			t.Errorf("expected vector %d to not carry an error code", v)
		}
	}
}

func TestTimerTickIncrementsCountAndCallsScheduler(t *testing.T) {
	origSwitch := switchFn
	origEOI := sendEOIFn
	origTicksPerMs := apicTicksPerMillisecond
	t.Cleanup(func() {
		switchFn = origSwitch
		sendEOIFn = origEOI
		apicTicksPerMillisecond = origTicksPerMs
	})

	eoiCalls := 0
	sendEOIFn = func() { eoiCalls++ }

	var switched *sched.CPUContext
	switchFn = func(ctx *sched.CPUContext) { switched = ctx }

	// Align tickCount to a multiple of ticksPerSwitch so the final tick
	// below actually triggers a switch.
	tickCount -= tickCount % ticksPerSwitch
	before := tickCount
	ctx := &sched.CPUContext{}

	for i := uint64(0); i < ticksPerSwitch; i++ {
		timerTick(ctx)
	}

	if tickCount != before+ticksPerSwitch {
		t.Fatalf("expected tickCount to advance by %d, got delta %d", ticksPerSwitch, tickCount-before)
	}
	if switched != ctx {
		t.Fatal("expected timerTick to forward its context to the scheduler on the switching tick")
	}
	if eoiCalls != ticksPerSwitch {
		t.Fatalf("expected one EOI per tick (%d total), got %d", ticksPerSwitch, eoiCalls)
	}
}

func TestPMTimerCounterMaxMatchesWidth(t *testing.T) {
	pm := &PMTimer{Port: 0, Is32Bit: false}
	// Check the counter width that BusyWaitMillis's wraparound arithmetic
	// relies on, rather than the I/O port read, which needs real hardware.
	max := pm.counterMax()
	if max != 0x00FFFFFF {
		t.Fatalf("expected a 24-bit counter max, got %x", max)
	}
	pm32 := &PMTimer{Port: 0, Is32Bit: true}
	if pm32.counterMax() != 0xFFFFFFFF {
		t.Fatal("expected a 32-bit counter max when Is32Bit is set")
	}
}

func TestNewPMTimerReadsWidthFromFADTFlags(t *testing.T) {
	narrow := NewPMTimer(0x608, 0)
	if narrow.Is32Bit {
		t.Fatal("expected flags bit 8 clear to select the 24-bit counter")
	}
	wide := NewPMTimer(0x608, 1<<8)
	if !wide.Is32Bit {
		t.Fatal("expected flags bit 8 set to select the 32-bit counter")
	}
	if wide.Port != 0x608 {
		t.Fatalf("expected Port to be taken verbatim from pmTmrBlk, got %x", wide.Port)
	}
}
