// Package pmm contains the physical-page identity type shared by every
// physical memory allocator and by the virtual memory manager.
package pmm

import (
	"math"

	"github.com/lmarrow/nyxkernel/kernel/mem"
)

// Frame describes a physical memory page by its frame number; the page's
// physical address is number * mem.PageSize. Frame is a value type: two
// Frames compare equal iff they denote the same physical page.
type Frame uint64

// InvalidFrame is returned by allocators when they fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid returns true if this is not the sentinel InvalidFrame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame containing the given physical address,
// rounding down to the containing frame if addr is not frame-aligned.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
