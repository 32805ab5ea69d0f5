package heap

import "unsafe"

// freeRegion is the header a LinkedListFallback writes at the start of every
// free region it owns. Regions are never read except through this header
// until they are handed back out by allocate.
type freeRegion struct {
	size uintptr
	next *freeRegion
}

var headerSize = unsafe.Sizeof(freeRegion{})

func regionAt(addr uintptr) *freeRegion {
	return (*freeRegion)(unsafe.Pointer(addr))
}

func alignUp(v, align uintptr) uintptr {
	if align == 0 {
		align = 1
	}
	return (v + align - 1) &^ (align - 1)
}

// LinkedListFallback is the general-purpose backing allocator described by
// spec.md §4.G: a singly-linked list of free regions, each self-describing
// via a freeRegion header written at its own base address. BlockAllocator
// forwards to it for sizes that don't fit any size class, and to refill a
// size class's free list one block at a time.
type LinkedListFallback struct {
	head *freeRegion
}

// init seeds the fallback with a single free region spanning [base, base+size).
func (f *LinkedListFallback) init(base, size uintptr) {
	r := regionAt(base)
	r.size = size
	r.next = nil
	f.head = r
}

// allocate scans the free list for the first region that can satisfy size
// bytes aligned to align, splitting off an unused head (if alignment forced
// a gap) and tail (if one remains) as new free regions whenever they are
// large enough to carry their own header. A tail too small for a header is
// folded into the returned allocation; a head gap too small for a header is
// not tracked and is not reused. Returns 0 if no region is large enough.
func (f *LinkedListFallback) allocate(size, align uintptr) uintptr {
	if align == 0 {
		align = 1
	}

	var prev *freeRegion
	for cur := f.head; cur != nil; cur = cur.next {
		base := uintptr(unsafe.Pointer(cur))
		alignedBase := alignUp(base, align)
		slack := alignedBase - base
		if slack > cur.size {
			prev = cur
			continue
		}

		usable := cur.size - slack
		if usable < size {
			prev = cur
			continue
		}

		next := cur.next
		if prev == nil {
			f.head = next
		} else {
			prev.next = next
		}

		if slack < headerSize {
			// Too small to track as its own region; the gap (if any) stays
			// unused in front of the aligned allocation.
		} else {
			front := regionAt(base)
			front.size = slack
			front.next = f.head
			f.head = front
		}

		if remainder := usable - size; remainder >= headerSize {
			tail := regionAt(alignedBase + size)
			tail.size = remainder
			tail.next = f.head
			f.head = tail
		}

		return alignedBase
	}

	return 0
}

// deallocate returns [ptr, ptr+size) to the free list as a new region. Sizes
// smaller than a freeRegion header are rounded up so the region can describe
// itself; coalescing with address-adjacent neighbours is not performed
// (optional per spec.md §4.G, and the list is not kept address-sorted).
func (f *LinkedListFallback) deallocate(ptr, size uintptr) {
	if size < headerSize {
		size = headerSize
	}

	r := regionAt(ptr)
	r.size = size
	r.next = f.head
	f.head = r
}
