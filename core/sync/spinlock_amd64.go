// Package sync provides the synchronization primitives the rest of the
// kernel is built on: an interrupt-free spinlock, a sleep/wake mutex wired
// to the scheduler, and a single-assignment OnceCell. The spinlock masks
// and restores IF around its critical section, so it stays safe to take
// from inside an interrupt handler.
package sync

import "sync/atomic"

// Spinlock is an interrupt-free busy-wait lock. Holding one is always safe
// inside an interrupt handler because Acquire masks IF for the duration of
// the critical section: the only other context that could
// ever contend for the lock on this single-CPU kernel is the timer
// interrupt itself, and that context can no longer run once IF is clear.
type Spinlock struct {
	state uint32
}

// Acquire disables interrupts, spins until the lock is taken, and returns
// the IF state observed on entry so Release can restore it.
func (l *Spinlock) Acquire() (wasEnabled bool) {
	wasEnabled = cpuInterruptsEnabledFn()
	cpuDisableInterruptsFn()

	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		cpuPauseFn()
	}
	return wasEnabled
}

// TryAcquire attempts a single non-blocking acquisition. On success it
// masks interrupts exactly like Acquire and returns (true, priorIF); on
// failure it leaves the interrupt flag untouched and returns (false, _).
func (l *Spinlock) TryAcquire() (ok bool, wasEnabled bool) {
	wasEnabled = cpuInterruptsEnabledFn()
	cpuDisableInterruptsFn()

	if atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		return true, wasEnabled
	}

	if wasEnabled {
		cpuEnableInterruptsFn()
	}
	return false, wasEnabled
}

// Release relinquishes the lock and restores IF to the state Acquire
// observed, re-enabling it only if it was set on entry.
func (l *Spinlock) Release(wasEnabled bool) {
	atomic.StoreUint32(&l.state, 0)
	if wasEnabled {
		cpuEnableInterruptsFn()
	}
}
