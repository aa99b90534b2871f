package main

import (
	"corekernel/core/boot"
	"corekernel/core/kmain"
)

// handOffPtr is populated by the rt0 assembly stub before main is called,
// pointing at a boot.HandOff the loader built on its own stack. It is
// declared as a package-level variable (rather than an argument threaded
// through from a lower-level entry symbol): a global the assembly can
// store into by symbol name, without this package needing to know the
// loader's calling convention for passing arguments into Go.
var handOffPtr *boot.HandOff

// main is the only Go symbol visible from the rt0 initialization code. It
// is a trampoline for the real kernel entry point (kmain.Kmain), kept
// intentionally trivial so the assembly rt0 — which sets up the GDT and a
// minimal g0 on a small bootstrap stack before jumping here — has exactly
// one symbol to call.
//
// main is not expected to return. If it does, the rt0 code halts the CPU.
func main() {
	kmain.Kmain(handOffPtr)
}
