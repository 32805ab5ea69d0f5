package allocator

import (
	"reflect"
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/heap"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
)

// frameSize is the size, in bytes, of a single pmm.Frame entry in the free
// list's backing array.
const frameSize = unsafe.Sizeof(pmm.Frame(0))

// GrowFreeListFromKernelHeap returns a growFn suitable for
// SetFreeListGrowthFn that doubles the free list's backing storage by
// allocating from the kernel heap. Returns a nil slice (triggering the
// free list's own out-of-memory handling) if the heap itself is exhausted.
func GrowFreeListFromKernelHeap(oldCapacity int) []pmm.Frame {
	newCapacity := oldCapacity * 2

	ptr := heap.Kernel.Allocate(uintptr(newCapacity)*frameSize, frameSize)
	if ptr == 0 {
		return nil
	}

	var frames []pmm.Frame
	*(*reflect.SliceHeader)(unsafe.Pointer(&frames)) = reflect.SliceHeader{
		Data: ptr,
		Len:  newCapacity,
		Cap:  newCapacity,
	}
	return frames
}
