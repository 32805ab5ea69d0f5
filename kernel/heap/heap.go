// Package heap implements the kernel's segregated-size block allocator
// (spec.md §4.G): a fixed set of size-class free lists backed by a
// general-purpose LinkedListFallback for anything a class can't hold. The
// same type backs both the kernel heap (spec.md §4.F step 6) and each
// process's per-process heap (spec.md §4.I), just seeded over a different
// address range.
package heap

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/mem"
)

// Kernel is the kernel's own heap, seeded by kmain once the kernel heap
// range (spec.md §4.F step 6) is mapped. Allocations the kernel makes for
// its own bookkeeping — such as growing the frame allocator's free list —
// come from here, distinct from any process's per-process heap.
var Kernel BlockAllocator

// sizeClasses are the free-list bucket sizes a BlockAllocator maintains.
// Every node in class c is c-byte aligned and c bytes long; a node's memory
// is never read except through its list link until it is re-allocated.
var sizeClasses = [9]uintptr{8, 16, 32, 64, 128, 256, 512, 1024, 2048}

// classNode is the intrusive free-list link a free block carries in its own
// first word.
type classNode struct {
	next *classNode
}

// BlockAllocator is a segregated free-list allocator over one contiguous
// address range.
type BlockAllocator struct {
	classes  [len(sizeClasses)]*classNode
	fallback LinkedListFallback
}

// Init seeds the allocator with a single backing region [base, base+size).
func (h *BlockAllocator) Init(base uintptr, size mem.Size) {
	h.fallback.init(base, uintptr(size))
}

// classFor returns the index of the smallest size class ≥ n, or ok=false if
// n is larger than every class (the caller must use the fallback directly).
func classFor(n uintptr) (class int, ok bool) {
	for i, c := range sizeClasses {
		if c >= n {
			return i, true
		}
	}
	return 0, false
}

// Allocate maps (size, align) to the smallest size class ≥ max(size, align);
// if none fits, the request is forwarded to the fallback. A non-empty class
// free list is popped directly; an empty one is refilled by asking the
// fallback for one class-sized, class-aligned block (so later deallocations
// of that block can be pushed back onto the class list without violating its
// alignment invariant). Returns 0 on exhaustion, mirroring spec.md §7's
// null-on-OOM heap contract.
func (h *BlockAllocator) Allocate(size, align uintptr) uintptr {
	want := size
	if align > want {
		want = align
	}

	class, ok := classFor(want)
	if !ok {
		return h.fallback.allocate(size, align)
	}

	if head := h.classes[class]; head != nil {
		h.classes[class] = head.next
		return uintptr(unsafe.Pointer(head))
	}

	classSize := sizeClasses[class]
	return h.fallback.allocate(classSize, classSize)
}

// Deallocate recomputes the owning size class from size and pushes ptr onto
// its free list; sizes that don't belong to any class are forwarded to the
// fallback with the same size. Callers must pass the same size given to the
// matching Allocate call.
func (h *BlockAllocator) Deallocate(ptr, size uintptr) {
	class, ok := classFor(size)
	if !ok {
		h.fallback.deallocate(ptr, size)
		return
	}

	node := (*classNode)(unsafe.Pointer(ptr))
	node.next = h.classes[class]
	h.classes[class] = node
}
