package heap

import (
	"testing"
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/mem"
)

func newTestHeap(t *testing.T, size uintptr) (*BlockAllocator, uintptr) {
	t.Helper()
	backing := make([]byte, size)
	base := uintptr(unsafe.Pointer(&backing[0]))

	var h BlockAllocator
	h.Init(base, mem.Size(size))
	return &h, base
}

func TestAllocateThenDeallocateReturnsSamePointer(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	p1 := h.Allocate(16, 0)
	if p1 == 0 {
		t.Fatal("expected a non-nil allocation")
	}
	h.Deallocate(p1, 16)

	p2 := h.Allocate(16, 0)
	if p2 != p1 {
		t.Fatalf("expected second 16-byte allocation to reuse %#x; got %#x", p1, p2)
	}
}

func TestLargeAllocationRoutesToFallbackAndRoundTrips(t *testing.T) {
	h, _ := newTestHeap(t, 1<<20)

	p1 := h.Allocate(3000, 0)
	if p1 == 0 {
		t.Fatal("expected a non-nil allocation for a fallback-routed size")
	}
	h.Deallocate(p1, 3000)

	p2 := h.Allocate(3000, 0)
	if p2 != p1 {
		t.Fatalf("expected identical 3000-byte request to land in the same region; got %#x vs %#x", p1, p2)
	}
}

func TestClassExhaustionThenTwoDeallocationsReplayInLIFOOrder(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	a := h.Allocate(32, 0)
	b := h.Allocate(32, 0)
	if a == 0 || b == 0 || a == b {
		t.Fatalf("expected two distinct fresh 32-byte blocks; got %#x, %#x", a, b)
	}

	h.Deallocate(a, 32)
	h.Deallocate(b, 32)

	firstReplay := h.Allocate(32, 0)
	secondReplay := h.Allocate(32, 0)
	if firstReplay != b {
		t.Fatalf("expected LIFO replay to hand back %#x first; got %#x", b, firstReplay)
	}
	if secondReplay != a {
		t.Fatalf("expected LIFO replay to hand back %#x second; got %#x", a, secondReplay)
	}
}

func TestClassAllocationIsAlignedToClassSize(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	for _, class := range sizeClasses {
		p := h.Allocate(class, 0)
		if p == 0 {
			t.Fatalf("expected a non-nil allocation for class size %d", class)
		}
		if p%class != 0 {
			t.Errorf("expected allocation for class %d to be %d-byte aligned; got %#x", class, class, p)
		}
	}
}

func TestOutOfMemoryReturnsZero(t *testing.T) {
	h, _ := newTestHeap(t, 64)

	// Drain the backing region with allocations too large for any class so
	// every request hits the fallback directly.
	var last uintptr
	for i := 0; i < 8; i++ {
		p := h.Allocate(4096, 0)
		if p == 0 {
			return
		}
		last = p
	}
	t.Fatalf("expected the fallback to exhaust a 64-byte region well before 8 4096-byte requests; last=%#x", last)
}

func TestFallbackSplitLeavesUsableRemainder(t *testing.T) {
	var f LinkedListFallback
	backing := make([]byte, 256)
	base := uintptr(unsafe.Pointer(&backing[0]))
	f.init(base, 256)

	p1 := f.allocate(64, 8)
	if p1 != base {
		t.Fatalf("expected the first allocation to start at the region base %#x; got %#x", base, p1)
	}

	p2 := f.allocate(32, 8)
	if p2 == 0 {
		t.Fatal("expected the split remainder to satisfy a second allocation")
	}
	if p2 < base+64 || p2 >= base+256 {
		t.Fatalf("expected the second allocation to land in the remainder after the first 64 bytes; got %#x", p2)
	}
}
