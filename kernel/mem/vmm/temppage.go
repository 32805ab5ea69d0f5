package vmm

import (
	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
)

var errTemporaryPageExhausted = &kernel.Error{Module: "vmm", Message: "temporary page frame allocator exhausted"}

// TemporaryPage wraps a single scratch virtual page together with a 3-frame
// mini-allocator of its own, so that mapping the temporary page never
// recurses back into the global frame allocator while that allocator's own
// page tables are the thing being edited. KernelRemap constructs one and
// passes it to PageDirectoryTable.With, which does not dereference it.
type TemporaryPage struct {
	page   Page
	frames [3]pmm.Frame
	used   int
}

// NewTemporaryPage creates a TemporaryPage bound to the given virtual page
// and backed by the three supplied physical frames.
func NewTemporaryPage(page Page, frames [3]pmm.Frame) *TemporaryPage {
	return &TemporaryPage{page: page, frames: frames}
}

// allocFrame hands out one of the three reserved frames. It is the allocator
// passed to Map calls issued while establishing the temporary mapping itself,
// so those calls never touch the global frame allocator.
func (tp *TemporaryPage) allocFrame() (pmm.Frame, *kernel.Error) {
	if tp.used == len(tp.frames) {
		return pmm.InvalidFrame, errTemporaryPageExhausted
	}

	f := tp.frames[tp.used]
	tp.used++
	return f, nil
}

// Map asserts that the wrapped page is currently unmapped, maps it writable
// to the given frame and returns its virtual address.
func (tp *TemporaryPage) Map(frame pmm.Frame) (uintptr, *kernel.Error) {
	if _, err := Translate(tp.page.Address()); err == nil {
		return 0, errAlreadyMapped
	}

	prevAllocator := frameAllocator
	frameAllocator = tp.allocFrame
	defer func() { frameAllocator = prevAllocator }()

	if err := Map(tp.page, frame, FlagRW); err != nil {
		return 0, err
	}

	return tp.page.Address(), nil
}

// Unmap reverses a prior call to Map.
func (tp *TemporaryPage) Unmap() *kernel.Error {
	return Unmap(tp.page)
}

var errAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
