package vmm

import (
	"testing"

	"corekernel/core/mm"
)

func resetKernelImage() {
	kernelImage = KernelImage{}
}

func TestStraightMapBijection(t *testing.T) {
	resetKernelImage()

	for _, phys := range []uintptr{1, 0x1000, 0x10_0000, uintptr(mm.StraightMapSize) - uintptr(mm.PageSize)} {
		virt, ok := PhysToVirt(phys)
		if !ok {
			t.Fatalf("PhysToVirt(%#x) reported unmapped", phys)
		}
		got, ok := VirtToPhys(virt)
		if !ok || got != phys {
			t.Fatalf("round trip failed for phys=%#x: got phys=%#x ok=%v", phys, got, ok)
		}
	}
}

func TestStraightMapExcludesPastEnd(t *testing.T) {
	resetKernelImage()

	// The boundary is strict: phys == StraightMapSize is one byte past the
	// mapped range and must be rejected, not admitted by an off-by-one
	// "<=" guard.
	if _, ok := PhysToVirt(uintptr(mm.StraightMapSize)); ok {
		t.Fatal("expected phys == STRAIGHT_MAP_SIZE to be out of range")
	}
	if _, ok := PhysToVirt(uintptr(mm.StraightMapSize) - 1); !ok {
		t.Fatal("expected the last byte of the straight map to be in range")
	}
}

func TestStraightMapPrefersKernelImage(t *testing.T) {
	kernelImage = KernelImage{PhysStart: 0x20_0000, PhysEnd: 0x40_0000, VirtStart: 0xFFFF_FFFF_8000_0000}

	virt, ok := PhysToVirt(0x20_1000)
	if !ok {
		t.Fatal("expected kernel image range to be mapped")
	}
	want := kernelImage.VirtStart + 0x1000
	if virt != want {
		t.Fatalf("expected %#x, got %#x", want, virt)
	}

	phys, ok := VirtToPhys(virt)
	if !ok || phys != 0x20_1000 {
		t.Fatalf("expected round trip back to 0x201000, got %#x ok=%v", phys, ok)
	}
}
