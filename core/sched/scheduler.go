// Package sched implements a cooperative-preemptive round-robin
// scheduler, using the kernel.Error/kernel.Panic fatal-error convention
// and a struct-layout-matters CPUContext whose field order is fixed by
// the assembly that saves and restores it.
package sched

import (
	"unsafe"

	"corekernel/core/cpu"
	"corekernel/core/kernel"
	"corekernel/core/mm"
	coresync "corekernel/core/sync"
)

// TaskState is one of the three states a Task can occupy.
type TaskState uint8

const (
	StateBlocked TaskState = iota
	StateReady
	StateRunning
)

// Task is a schedulable unit of execution: its saved CPUContext and the
// storage backing its kernel stack.
type Task struct {
	ID       uint32
	State    TaskState
	Priority uint32
	Context  CPUContext

	// stack is nil for the bootstrap task (id 0), which runs on the
	// kernel's own boot stack rather than one allocated here.
	stack []byte
}

const readyQueueCapacity = 256

var (
	tasks      = map[uint32]*Task{}
	readyQueue [readyQueueCapacity]uint32
	qHead      int
	qLen       int
	runningID  uint32
	nextID     uint32

	lock coresync.Spinlock

	errTaskIDExhausted = &kernel.Error{Module: "sched", Message: "task id counter exhausted"}
	errNoRunnableTask  = &kernel.Error{Module: "sched", Message: "Sleep: no runnable task left"}

	// restoreContextFn/saveAndRestoreContextFn are swapped out by tests,
	// since the real implementations are hand-written assembly that
	// either never returns (restoreContextFn, a one-way iretq) or
	// resumes a different stack entirely (saveAndRestoreContextFn).
	// Production code always uses the bodyless asm-backed defaults.
	restoreContextFn        = restoreContext
	saveAndRestoreContextFn = saveAndRestoreContext
)

func qPushBack(id uint32) {
	tail := (qHead + qLen) % readyQueueCapacity
	readyQueue[tail] = id
	qLen++
}

func qPopFront() (uint32, bool) {
	if qLen == 0 {
		return 0, false
	}
	id := readyQueue[qHead]
	qHead = (qHead + 1) % readyQueueCapacity
	qLen--
	return id, true
}

func qRemove(id uint32) {
	n := qLen
	for i := 0; i < n; i++ {
		cur, _ := qPopFront()
		if cur != id {
			qPushBack(cur)
		}
	}
}

// Init installs a bootstrap Task with id 0 bound to the current execution
// context: no stack is allocated for it (the kernel's own boot stack is
// used), and it starts Running.
func Init() {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	tasks = map[uint32]*Task{0: {ID: 0, State: StateRunning}}
	runningID = 0
	nextID = 1
	qHead, qLen = 0, 0
	qPushBack(0)
}

// Register allocates DefaultStackPages worth of stack, constructs a
// CPUContext pointed at entryFn, and appends the new task to the ready
// queue in state Ready. The id is a monotonically
// increasing counter; exhaustion is a hard, unrecoverable error.
func Register(entryFn uintptr, priority uint32, csSelector, ssSelector uint16) uint32 {
	stack := make([]byte, int(mm.DefaultStackPages)*int(mm.PageSize))
	stackTop := uintptr(unsafe.Pointer(&stack[0])) + uintptr(len(stack))

	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	if nextID == 0 {
		kernel.Panic(errTaskIDExhausted)
	}
	id := nextID
	nextID++

	t := &Task{
		ID:       id,
		State:    StateReady,
		Priority: priority,
		stack:    stack,
	}
	t.Context.RIP = uint64(entryFn)
	t.Context.RSP = uint64(stackTop - 8)
	t.Context.CR3 = uint64(cpu.ReadCR3())
	t.Context.CS = uint64(csSelector)
	t.Context.SS = uint64(ssSelector)
	t.Context.RFlags = 0x202 // IF=1, reserved bit 1 set

	tasks[id] = t
	qPushBack(id)
	return id
}

// Start enables interrupts and halts in a loop; all scheduling from this
// point on is driven by the timer.
func Start() {
	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}

// CurrentTaskID returns the id of the currently running task. Safe to call
// at any time on this single-CPU kernel.
func CurrentTaskID() uint32 {
	return runningID
}

// Switch is called from the timer handler with interrupts already
// disabled. It rotates the ready-queue head to the tail and, if the new
// head differs from the currently running task, saves prevCtx into the
// outgoing task's slot and restores the incoming task's context — which
// never returns here on an actual switch. Caller must not
// hold the sleep mutex across this call.
func Switch(prevCtx *CPUContext) {
	wasEnabled := lock.Acquire()

	if cur, ok := qPopFront(); ok {
		qPushBack(cur)
	}

	next, ok := peekFront()
	if !ok || next == runningID {
		lock.Release(wasEnabled)
		return
	}

	if t := tasks[runningID]; t != nil {
		t.State = StateReady
		t.Context = *prevCtx
	}

	nextTask := tasks[next]
	nextTask.State = StateRunning
	runningID = next

	lock.Release(wasEnabled)
	restoreContextFn(&nextTask.Context)
}

// peekFront returns the id at the head of the ready queue without popping.
func peekFront() (uint32, bool) {
	if qLen == 0 {
		return 0, false
	}
	return readyQueue[qHead], true
}

// Sleep voluntarily yields the CPU: marks the current task Blocked, removes
// it from the ready queue, rotates to the next task, and performs a
// save-and-restore switch so execution resumes here once the task is woken
// and rescheduled.
func Sleep() {
	wasEnabled := cpu.InterruptsEnabled()
	cpu.DisableInterrupts()

	wasEnabledLock := lock.Acquire()

	self := runningID
	selfTask := tasks[self]
	selfTask.State = StateBlocked
	qRemove(self)

	next, ok := qPopFront()
	if !ok {
		kernel.Panic(errNoRunnableTask)
	}
	qPushBack(next)
	nextTask := tasks[next]
	nextTask.State = StateRunning
	runningID = next

	lock.Release(wasEnabledLock)

	saveAndRestoreContextFn(&selfTask.Context, &nextTask.Context)

	if wasEnabled {
		cpu.EnableInterrupts()
	}
}

// WakeUp transitions a Blocked task to Ready and appends it to the ready
// queue. No-op if the task does not exist or is not Blocked.
func WakeUp(id uint32) {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	t, ok := tasks[id]
	if !ok || t.State != StateBlocked {
		return
	}
	t.State = StateReady
	qPushBack(id)
}

// Hooks returns the injection point sync.Mutex needs to block/wake/identify
// tasks, wired once during boot via sync.SetSchedulerHooks(sched.Hooks()).
func Hooks() coresync.SchedulerHooks {
	return coresync.SchedulerHooks{
		Sleep:         Sleep,
		WakeUp:        WakeUp,
		CurrentTaskID: CurrentTaskID,
	}
}
