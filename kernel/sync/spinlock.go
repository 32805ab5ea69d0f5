// Package sync provides synchronization primitives for code that runs
// before (or entirely outside) the Go scheduler, such as interrupt handlers
// and the syscall dispatcher.
package sync

import "sync/atomic"

var (
	// TODO: replace with a real yield function once a scheduler exists.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
//
// Per the shared-resource policy, the keyboard ring buffer is the one
// structure mutated from both interrupt and task context; IRQ1's push runs
// with interrupts disabled so it never contends with itself, and the task
// side (READ_CHAR) polls rather than blocks. Spinlock exists for the other
// shared structures (the heap's free lists, the frame allocator's free
// list) that a future preemptive scheduler would contend on.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock is an arch-specific implementation for acquiring the lock.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
