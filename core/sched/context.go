package sched

// CPUContext is the full architectural state needed to resume a task:
// control registers, the interrupt-return frame fields, and every
// general-purpose register plus the FXSAVE area. Its layout is
// byte-offset-stable by design: the timer interrupt prologue/epilogue and
// the sleep-path context-switch routine (both hand-written assembly,
// described but not transliterated here per the no-asm-translation rule)
// index every field by literal offset, so reordering or resizing any field
// below breaks those routines silently. Offsets are listed in comments for
// exactly that reason.
type CPUContext struct {
	CR3     uint64 // +0
	RIP     uint64 // +8
	RFlags  uint64 // +16
	_       uint64 // +24 reserved, matches the assembly prologue's RBP slot
	CS      uint64 // +32
	SS      uint64 // +40
	FS      uint64 // +48
	GS      uint64 // +56

	RAX uint64 // +64
	RBX uint64 // +72
	RCX uint64 // +80
	RDX uint64 // +88
	RSI uint64 // +96
	RDI uint64 // +104
	RBP uint64 // +112
	RSP uint64 // +120
	R8  uint64 // +128
	R9  uint64 // +136
	R10 uint64 // +144
	R11 uint64 // +152
	R12 uint64 // +160
	R13 uint64 // +168
	R14 uint64 // +176
	R15 uint64 // +184

	FXArea [512]byte // +192, 16-byte aligned per the FXSAVE/FXRSTOR contract
}

// saveAndRestoreContext/restoreContext are the hand-written assembly routines
// that serialize the running CPU's register file into a CPUContext and
// load one back, respectively. They are bodyless Go declarations exactly
// like package cpu's primitives (cpu_amd64.go) — implemented in assembly
// (PUSH/POP, FXSAVE/FXRSTOR, IRETQ) rather than shown here.
//
// saveAndRestoreContext saves the caller's full register state into save,
// then loads restore and resumes execution there. Used by Sleep, which
// needs its own stack frame preserved for when the task is later woken and
// rescheduled.
func saveAndRestoreContext(save, restore *CPUContext)

// restoreContext loads ctx and resumes execution there without saving
// anything first. Used by the timer-tick path (switch), which never
// returns to its caller on an actual switch — the previously-saved context
// for the task being switched away from was already captured by the
// interrupt prologue before Switch was called.
func restoreContext(ctx *CPUContext)
