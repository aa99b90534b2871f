package sched

import "testing"

func installMockContextSwitch(t *testing.T) {
	t.Helper()
	origRestore := restoreContextFn
	origSaveRestore := saveAndRestoreContextFn

	// Real restoreContext/saveAndRestoreContext resume execution inside
	// the target context and never return to their caller in the normal
	// sense; these fakes do nothing so the scheduling decisions
	// (which id becomes current) can be exercised without real hardware.
	restoreContextFn = func(ctx *CPUContext) {}
	saveAndRestoreContextFn = func(save, restore *CPUContext) {}

	t.Cleanup(func() {
		restoreContextFn = origRestore
		saveAndRestoreContextFn = origSaveRestore
	})
}

func TestRoundRobinReturnsToStartingID(t *testing.T) {
	installMockContextSwitch(t)
	Init()
	Register(0x1000, 0, 0x08, 0x10)
	Register(0x2000, 0, 0x08, 0x10)

	start := CurrentTaskID()
	n := uint32(len(tasks))

	var ctx CPUContext
	for i := uint32(0); i < n; i++ {
		Switch(&ctx)
	}
	if CurrentTaskID() != start {
		t.Fatalf("expected to cycle back to task %d after %d ticks, got %d", start, n, CurrentTaskID())
	}
}

func TestSwitchNoopWithSingleTask(t *testing.T) {
	installMockContextSwitch(t)
	Init()

	var ctx CPUContext
	Switch(&ctx)
	if CurrentTaskID() != 0 {
		t.Fatalf("expected task 0 to remain current, got %d", CurrentTaskID())
	}
}

func TestSleepWakeUpCycle(t *testing.T) {
	installMockContextSwitch(t)
	Init()
	other := Register(0x1000, 0, 0x08, 0x10)

	// Promote the other task to Running by rotating once.
	var ctx CPUContext
	Switch(&ctx)
	if CurrentTaskID() != other {
		t.Fatalf("expected task %d to be running, got %d", other, CurrentTaskID())
	}

	Sleep()
	if CurrentTaskID() == other {
		t.Fatal("expected the running task to change after Sleep")
	}
	if tasks[other].State != StateBlocked {
		t.Fatalf("expected task %d to be Blocked after Sleep, got %v", other, tasks[other].State)
	}

	WakeUp(other)
	if tasks[other].State != StateReady {
		t.Fatalf("expected task %d to be Ready after WakeUp, got %v", other, tasks[other].State)
	}
}

func TestWakeUpIgnoresNonBlockedTask(t *testing.T) {
	installMockContextSwitch(t)
	Init()
	id := Register(0x1000, 0, 0x08, 0x10)

	before := tasks[id].State
	WakeUp(id) // task is Ready, not Blocked: no-op
	if tasks[id].State != before {
		t.Fatalf("expected WakeUp on a non-Blocked task to be a no-op")
	}
}
