package kernel

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// A zero-size request must be a no-op.
	Memset(uintptr(0), 0x00, 0)

	for shift := uint(1); shift <= 10; shift++ {
		buf := make([]byte, 1<<shift)
		for i := range buf {
			buf[i] = 0xFE
		}

		addr := uintptr(unsafe.Pointer(&buf[0]))
		Memset(addr, 0x00, uintptr(len(buf)))

		for i, b := range buf {
			if b != 0x00 {
				t.Errorf("[len %d] expected byte %d to be 0x00; got 0x%x", len(buf), i, b)
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	src := make([]byte, 256)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, 256)

	Memcopy(
		uintptr(unsafe.Pointer(&src[0])),
		uintptr(unsafe.Pointer(&dst[0])),
		uintptr(len(src)),
	)

	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("byte %d: expected %x; got %x", i, src[i], dst[i])
		}
	}
}
