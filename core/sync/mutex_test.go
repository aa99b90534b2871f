package sync

import "testing"

func installFakeSchedulerHooks(t *testing.T, currentID uint32) (sleepCalls, wakeCalls *int, wokenIDs *[]uint32) {
	t.Helper()
	orig := schedulerHooks

	sleeps := 0
	wakes := 0
	var woken []uint32

	schedulerHooks = SchedulerHooks{
		Sleep: func() { sleeps++ },
		WakeUp: func(id uint32) {
			wakes++
			woken = append(woken, id)
		},
		CurrentTaskID: func() uint32 { return currentID },
	}

	t.Cleanup(func() { schedulerHooks = orig })
	return &sleeps, &wakes, &woken
}

func TestMutexUncontendedLockUnlockNeverSleeps(t *testing.T) {
	sleeps, _, _ := installFakeSchedulerHooks(t, 1)

	var m Mutex
	m.Lock()
	if *sleeps != 0 {
		t.Fatalf("expected an uncontended Lock to never call Sleep, got %d calls", *sleeps)
	}
	if m.locked != 1 {
		t.Fatal("expected locked to be set after Lock")
	}

	m.Unlock()
	if m.locked != 0 {
		t.Fatal("expected locked to be cleared after Unlock")
	}
}

func TestMutexUnlockWakesQueuedHeadInFIFOOrder(t *testing.T) {
	_, wakes, woken := installFakeSchedulerHooks(t, 0)

	var m Mutex
	m.locked = 1 // simulate an already-held lock with waiters queued behind it
	m.queue.pushBack(7)
	m.queue.pushBack(9)

	m.Unlock()

	if *wakes != 1 {
		t.Fatalf("expected exactly one WakeUp call, got %d", *wakes)
	}
	if len((*woken)) != 1 || (*woken)[0] != 7 {
		t.Fatalf("expected the queue head (7) to be woken first, got %v", *woken)
	}
	if m.queue.len != 1 {
		t.Fatalf("expected one waiter left in the queue, got %d", m.queue.len)
	}
}

func TestMutexUnlockNoopWhenQueueEmpty(t *testing.T) {
	_, wakes, _ := installFakeSchedulerHooks(t, 0)

	var m Mutex
	m.locked = 1
	m.Unlock()

	if *wakes != 0 {
		t.Fatalf("expected no WakeUp call with an empty queue, got %d", *wakes)
	}
}

func TestWaitQueueFIFOAndRemove(t *testing.T) {
	var q waitQueue
	q.pushBack(1)
	q.pushBack(2)
	q.pushBack(3)

	q.remove(2)
	if q.len != 2 {
		t.Fatalf("expected len 2 after removing one of three entries, got %d", q.len)
	}

	first, ok := q.popFront()
	if !ok || first != 1 {
		t.Fatalf("expected 1 to remain at the front, got %d, ok=%v", first, ok)
	}
	second, ok := q.popFront()
	if !ok || second != 3 {
		t.Fatalf("expected 3 to be next after removing 2, got %d, ok=%v", second, ok)
	}
	if _, ok := q.popFront(); ok {
		t.Fatal("expected the queue to be empty")
	}
}

func TestGuardUnlocksOnPanic(t *testing.T) {
	installFakeSchedulerHooks(t, 1)

	var m Mutex
	func() {
		defer func() { recover() }()
		m.Guard(func() { panic("boom") })
	}()

	if m.locked != 0 {
		t.Fatal("expected Guard to unlock even when fn panics")
	}
}
