package enclave

import (
	"runtime"

	"go.uber.org/atomic"
)

// SpinLock is a busy-wait mutual exclusion lock for very short critical
// sections. It implements sync.Locker.
//
// Waiters never park on a kernel primitive, they yield the processor between
// attempts. Do not replace it with a blocking primitive: enclave runtimes
// may restrict them.
//
// The enclave's create section holds it for the handle check, node
// construction and the node's own Create. That includes the node's state
// store writes and any remote attestation round trip, so a concurrent
// creator may spin for as long as those take.
type SpinLock struct {
	locked atomic.Bool
}

// Lock spins until the lock is acquired.
func (l *SpinLock) Lock() {
	for !l.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return l.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking a free lock panics.
func (l *SpinLock) Unlock() {
	if !l.locked.CompareAndSwap(true, false) {
		panic("enclave: unlock of unlocked SpinLock")
	}
}
