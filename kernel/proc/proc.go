// Package proc manages the single user-mode process this kernel runs: its
// per-process heap, the page-table bookkeeping the ring-3 transition needs,
// and the transition itself (spec.md §4.I).
package proc

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/gate"
	"github.com/lmarrow/nyxkernel/kernel/heap"
	"github.com/lmarrow/nyxkernel/kernel/mem"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm/allocator"
	"github.com/lmarrow/nyxkernel/kernel/mem/vmm"
)

// Process is the record spec.md §4.I asks the ring-3 transition to
// construct: an entry point and a block allocator over this process's own
// heap range.
type Process struct {
	heap heap.BlockAllocator
}

// activeProcess is the process currently executing in ring 3. Only one
// process ever runs (spec.md §5's single-threaded, single-CPU, no-scheduler
// model), so a single package-level pointer is enough.
var activeProcess *Process

// Active returns the currently installed process, or nil if none has been
// started yet.
func Active() *Process {
	return activeProcess
}

// Allocate services the MALLOC syscall against this process's heap.
func (p *Process) Allocate(size uintptr) uintptr {
	return p.heap.Allocate(size, 0)
}

// Free services the FREE syscall. spec.md §4.I's dispatch table passes the
// syscall only a pointer ("activeProcess->heap->deallocate(arg, 0)"), so the
// class recomputed at deallocation time is always that of size 0; this
// mirrors the spec's own literal wording rather than a design choice made
// here.
func (p *Process) Free(ptr uintptr) {
	p.heap.Deallocate(ptr, 0)
}

// kernelStackSize is the dedicated stack TSS.rsp0 points at once a process
// has entered ring 3, sized the same as gate's double-fault stack since
// both only ever need to hold one nested trap's worth of frames.
const kernelStackSize = 16 * 1024

var kernelStack [kernelStackSize]byte

var (
	frameAllocFn     = allocator.AllocFrame
	mapFn            = vmm.Map
	markUserAccessFn = vmm.MarkUserAccessible
	setKernelStackFn = gate.SetKernelStack
	enterUserModeFn  = enterUserMode
)

// Start reserves and maps the user heap and stack ranges, builds the
// Process record, marks the page-table path down to entryPoint
// user-accessible, installs the process as active, points the TSS at a
// dedicated kernel stack and performs the ring-3 transition (spec.md
// §4.I). Start does not return on success: control passes to entryPoint in
// ring 3 and the caller's stack frame is abandoned, exactly like
// vmm.KernelRemap's higher-half jump.
func Start(entryPoint uintptr) *kernel.Error {
	if err := mapRange(mem.UserHeapStart, mem.UserHeapSize); err != nil {
		return err
	}

	stackBase := mem.UserStackTop - uintptr(mem.UserStackSize)
	if err := mapRange(stackBase, mem.UserStackSize); err != nil {
		return err
	}

	if err := markUserAccessFn(entryPoint); err != nil {
		return err
	}

	p := &Process{}
	p.heap.Init(mem.UserHeapStart, mem.UserHeapSize)
	activeProcess = p

	stackTop := uintptr(unsafe.Pointer(&kernelStack[0])) + uintptr(len(kernelStack))
	setKernelStackFn(stackTop)

	enterUserModeFn(entryPoint, mem.UserStackTop, gate.UserCSSelector, gate.UserDSSelector)
	return nil
}

// mapRange reserves fresh frames for every page in [base, base+size) and
// maps them writable and user-accessible.
func mapRange(base uintptr, size mem.Size) *kernel.Error {
	pages := size.Pages()
	page := vmm.PageFromAddress(base)
	for i := uint32(0); i < pages; i, page = i+1, page+1 {
		frame, err := frameAllocFn()
		if err != nil {
			return err
		}
		if err := mapFn(page, frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagUserAccessible|vmm.FlagNoExecute); err != nil {
			return err
		}
	}
	return nil
}
