// Package allocator implements the kernel's physical frame allocator.
//
// Allocation first drains a LIFO free list populated by DeallocFrame, then
// falls back to a bump cursor walked over the Multiboot2 memory map,
// skipping frames that fall inside the kernel image or the Multiboot2 info
// blob. Frames are never handed out twice between deallocations.
package allocator

import (
	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/mem"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
	"github.com/lmarrow/nyxkernel/kernel/multiboot"
	"github.com/lmarrow/nyxkernel/kernel/sync"
)

var (
	theAllocator bootMemAllocator

	// allocLock serializes AllocFrame/DeallocFrame against each other. IRQ1's
	// handler never touches the frame allocator, but a MALLOC syscall growing
	// the kernel heap and a concurrent page-fault handler reaching for a fresh
	// frame both can, so the free list needs the same protection its own doc
	// comment calls out.
	allocLock sync.Spinlock

	errOutOfMemory = &kernel.Error{Module: "pmm/allocator", Message: "out of memory"}
)

// bootMemAllocator implements the physical frame allocator described by
// spec.md §4.D: a LIFO free list checked first, falling back to a bump
// cursor over the available Multiboot2 memory regions.
type bootMemAllocator struct {
	allocCount uint64

	lastAllocFrame pmm.Frame

	kernelStartAddr, kernelEndAddr   uintptr
	kernelStartFrame, kernelEndFrame pmm.Frame

	mbStartAddr, mbEndAddr   uintptr
	mbStartFrame, mbEndFrame pmm.Frame

	free freeList
}

// Init sets up the frame allocator. kernelStart/kernelEnd and mbStart/mbEnd
// describe the physical extents of the kernel image and the Multiboot2 info
// blob respectively; frames overlapping either are never allocated.
func Init(kernelStart, kernelEnd, mbStart, mbEnd uintptr) {
	pageSizeMinus1 := uintptr(mem.PageSize - 1)

	theAllocator.kernelStartAddr = kernelStart
	theAllocator.kernelEndAddr = kernelEnd
	theAllocator.kernelStartFrame = pmm.Frame((kernelStart & ^pageSizeMinus1) >> mem.PageShift)
	theAllocator.kernelEndFrame = pmm.Frame(((kernelEnd+pageSizeMinus1) & ^pageSizeMinus1)>>mem.PageShift) - 1

	theAllocator.mbStartAddr = mbStart
	theAllocator.mbEndAddr = mbEnd
	theAllocator.mbStartFrame = pmm.Frame((mbStart & ^pageSizeMinus1) >> mem.PageShift)
	theAllocator.mbEndFrame = pmm.Frame(((mbEnd+pageSizeMinus1) & ^pageSizeMinus1)>>mem.PageShift) - 1

	theAllocator.allocCount = 0
	theAllocator.lastAllocFrame = 0
	theAllocator.free.init()
}

// AllocFrame returns a previously freed frame if the free list is
// non-empty; otherwise it advances the bump cursor over the Multiboot2
// memory map. It returns errOutOfMemory when no more frames exist.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	allocLock.Acquire()
	defer allocLock.Release()

	if f, ok := theAllocator.free.pop(); ok {
		return f, nil
	}
	return theAllocator.allocFromMmap()
}

// DeallocFrame returns frame to the free list so a future AllocFrame call
// may reuse it.
func DeallocFrame(frame pmm.Frame) *kernel.Error {
	allocLock.Acquire()
	defer allocLock.Release()

	return theAllocator.free.push(frame)
}

// SetFreeListGrowthFn installs the callback the free list uses to double its
// backing storage once a kernel heap becomes available. Before this is
// called, a full free list is a fatal condition (spec.md §4.D).
func SetFreeListGrowthFn(growFn func(oldCapacity int) []pmm.Frame) {
	theAllocator.free.growFn = growFn
}

// UpdatePointersToHigh adds offset, exactly once, to every raw pointer the
// allocator keeps internally. KernelRemap calls it after activating the new
// page table and just before the higher-half jump.
func UpdatePointersToHigh(offset uintptr) {
	theAllocator.kernelStartAddr += offset
	theAllocator.kernelEndAddr += offset
	theAllocator.mbStartAddr += offset
	theAllocator.mbEndAddr += offset
}

func (alloc *bootMemAllocator) reserved(frame pmm.Frame) bool {
	if frame >= alloc.kernelStartFrame && frame <= alloc.kernelEndFrame {
		return true
	}
	if frame >= alloc.mbStartFrame && frame <= alloc.mbEndFrame {
		return true
	}
	return false
}

func (alloc *bootMemAllocator) allocFromMmap() (pmm.Frame, *kernel.Error) {
	var found bool

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) {
		if found || region.Type != multiboot.MemAvailable || region.Length < uint64(mem.PageSize) {
			return
		}

		pageSizeMinus1 := uint64(mem.PageSize - 1)
		// Tie-break per spec.md §4.D: align the region's base up, truncate
		// its end down.
		regionStartFrame := pmm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mem.PageShift) - 1

		if alloc.allocCount > 0 && alloc.lastAllocFrame >= regionEndFrame {
			return
		}

		var candidate pmm.Frame
		switch {
		case alloc.allocCount == 0 || alloc.lastAllocFrame < regionStartFrame:
			candidate = regionStartFrame
		default:
			candidate = alloc.lastAllocFrame + 1
		}

		for candidate <= regionEndFrame && alloc.reserved(candidate) {
			candidate++
		}

		if candidate > regionEndFrame {
			return
		}

		alloc.lastAllocFrame = candidate
		found = true
	})

	if !found {
		return pmm.InvalidFrame, errOutOfMemory
	}

	alloc.allocCount++
	return alloc.lastAllocFrame, nil
}
