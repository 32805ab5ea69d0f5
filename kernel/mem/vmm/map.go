package vmm

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/mem"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
)

// ReservedZeroedFrame is a special zero-cleared frame allocated by the vmm
// package's Init function. The purpose of this frame is to assist in
// implementing on-demand memory allocation when mapping it in conjunction
// with the CopyOnWrite flag. Example:
//
//	mapFlags := vmm.FlagPresent | vmm.FlagCopyOnWrite
//	for page := start; pageCount > 0; pageCount, page = pageCount-1, page+1 {
//	    if err := vmm.Map(page, vmm.ReservedZeroedFrame, mapFlags); err != nil {
//	        return err
//	    }
//	}
//
// Page mappings are set up for the requested pages but no physical memory is
// reserved for their contents. A write to any of the above pages triggers a
// page fault that allocates a new frame, copies the blank frame into it and
// installs it in-place with RW permissions.
var ReservedZeroedFrame pmm.Frame

var (
	// protectReservedZeroedPage is set to true once ReservedZeroedFrame has
	// been carved out, preventing it from ever being mapped RW directly.
	protectReservedZeroedPage bool

	// nextAddrFn is used by tests to override the nextTableAddr
	// calculations used by Map. When compiling the kernel this function
	// will be automatically inlined.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = flushTLBEntry

	earlyReserveRegionFn = EarlyReserveRegion

	errNoHugePageSupport           = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAttemptToRWMapReservedFrame = &kernel.Error{Module: "vmm", Message: "reserved blank frame cannot be mapped with a RW flag"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// Map establishes a mapping between a virtual page and a physical memory
// frame using the currently active page directory table. Missing
// intermediate tables are created on demand using the registered frame
// allocator (see SetFrameAllocator).
//
// Attempts to map ReservedZeroedFrame with a RW flag will result in an error.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame && (flags&FlagRW) != 0 {
		return errAttemptToRWMapReservedFrame
	}

	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place, flag it as present and flush its TLB entry.
		if pteLevel == pageLevels-1 {
			// The target P1 entry must currently be unused; mapping over an
			// existing entry is a kernel invariant violation, not something
			// to silently paper over.
			if pte.HasFlags(FlagPresent) {
				err = errAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; allocate a physical frame for
		// it, map it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = frameAllocator()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			// The next pte entry becomes available but we need to
			// make sure that the new page is properly cleared.
			nextTableAddr := (uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1])
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapRegion establishes a mapping to the physical memory region which starts
// at the given frame and spans size bytes (rounded up to the nearest page).
// MapRegion reserves the next available region in the active virtual address
// space and returns the Page that corresponds to the region start.
func MapRegion(frame pmm.Frame, size mem.Size, flags PageTableEntryFlag) (Page, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)
	startAddr, err := earlyReserveRegionFn(size)
	if err != nil {
		return 0, err
	}

	pageCount := size >> mem.PageShift
	for page := PageFromAddress(startAddr); pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := Map(page, frame, flags); err != nil {
			return 0, err
		}
	}

	return PageFromAddress(startAddr), nil
}

// IdentityMapRegion establishes an identity mapping to the physical memory
// region which starts at the given frame and spans size bytes (rounded up to
// the nearest page), returning the Page that corresponds to the region start.
func IdentityMapRegion(startFrame pmm.Frame, size mem.Size, flags PageTableEntryFlag) (Page, *kernel.Error) {
	startPage := Page(startFrame)
	pageCount := Page(((size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)

	for curPage := startPage; curPage < startPage+pageCount; curPage++ {
		if err := Map(curPage, pmm.Frame(curPage), flags); err != nil {
			return 0, err
		}
	}

	return startPage, nil
}

// MapTemporary establishes a temporary RW mapping of a physical memory frame
// at a fixed virtual address. Callers must have released any previous
// mapping at that address with Unmap before calling MapTemporary again; the
// mechanism is primarily used by the kernel to access and initialize
// inactive page tables.
//
// Attempts to map ReservedZeroedFrame will result in an error.
func MapTemporary(frame pmm.Frame) (Page, *kernel.Error) {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame {
		return 0, errAttemptToRWMapReservedFrame
	}

	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagRW); err != nil {
		return 0, err
	}

	return PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed via a call to Map or MapTemporary.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry.
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		// Next table is not present; this is an invalid mapping.
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}
