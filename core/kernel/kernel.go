// Package kernel contains the types and helpers shared by the entire kernel
// tree: the allocation-free Error type, the fatal-error path, and the raw
// memory helpers that stand in for runtime.memclr/runtime.memmove while the
// Go allocator and the virtual memory map are not yet available.
package kernel

// Error describes a kernel error. Kernel errors are pointers to Error,
// either package-level variables or composite literals built at the
// failure site. This stems from the fact that the Go
// allocator is not available this early in boot, so errors.New and
// fmt.Errorf (which both allocate) cannot be used.
type Error struct {
	// Module names the subsystem where the error originated.
	Module string

	// Message is a short, human readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
