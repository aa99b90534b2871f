package vmm

import "unsafe"

// identityPtr reinterprets a physical address as a directly-dereferenceable
// pointer. Valid only while the loader's identity mapping at PML4[0] is
// still installed, i.e. during InitStraightMap and ClearIdentityMap.
func identityPtr(phys uintptr) unsafe.Pointer {
	return unsafe.Pointer(phys) //nolint:govet // freestanding: no GC-managed heap backs this address
}
