package sync

import "sync/atomic"

// OnceCell is a single-assignment container published once during boot and
// then read concurrently (by the current task and by interrupt handlers)
// without locks. The false->true transition of initialized is one-way and
// happens-before any read that observes true.
type OnceCell[T any] struct {
	data        T
	initialized uint32
	lock        uint32
}

// Init attempts to publish value. It returns true on the first call and
// false on every subsequent call.
func (c *OnceCell[T]) Init(value T) bool {
	if !atomic.CompareAndSwapUint32(&c.lock, 0, 1) {
		return false
	}

	if atomic.LoadUint32(&c.initialized) != 0 {
		return false
	}

	c.data = value
	// Release-fence the payload write before publishing, so any reader
	// that observes initialized==true via an Acquire load is guaranteed
	// to see the fully-written value.
	atomic.StoreUint32(&c.initialized, 1)
	return true
}

// Get returns the published value. It panics if Init has never succeeded;
// readers are expected to only call Get once boot order guarantees Init
// has already run.
func (c *OnceCell[T]) Get() T {
	if atomic.LoadUint32(&c.initialized) == 0 {
		panic("OnceCell: read before Init")
	}
	return c.data
}

// Initialized reports whether Init has already succeeded, without panicking.
func (c *OnceCell[T]) Initialized() bool {
	return atomic.LoadUint32(&c.initialized) != 0
}
