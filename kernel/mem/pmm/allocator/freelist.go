package allocator

import (
	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
)

const initialFreeListCapacity = 64

var errFreeListFull = &kernel.Error{Module: "pmm/allocator", Message: "free list exhausted and no heap available to grow it"}

// freeList is the LIFO free list consulted by AllocFrame before falling
// back to the bump cursor. Its backing store starts as a fixed-size array
// carved out of BSS (so it works before any heap exists) and switches to a
// heap-backed slice, doubled on demand, once growFn is installed.
type freeList struct {
	early [initialFreeListCapacity]pmm.Frame
	grown []pmm.Frame

	backing []pmm.Frame
	top     int

	growFn func(oldCapacity int) []pmm.Frame
}

func (fl *freeList) init() {
	fl.backing = fl.early[:]
	fl.top = 0
}

func (fl *freeList) push(frame pmm.Frame) *kernel.Error {
	if fl.top == len(fl.backing) {
		if fl.growFn == nil {
			return errFreeListFull
		}
		fl.grown = fl.growFn(len(fl.backing))
		if len(fl.grown) <= len(fl.backing) {
			return errFreeListFull
		}
		copy(fl.grown, fl.backing)
		fl.backing = fl.grown
	}

	fl.backing[fl.top] = frame
	fl.top++
	return nil
}

func (fl *freeList) pop() (pmm.Frame, bool) {
	if fl.top == 0 {
		return pmm.InvalidFrame, false
	}
	fl.top--
	return fl.backing[fl.top], true
}
