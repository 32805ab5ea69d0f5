package kmain

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/cpu"
	"github.com/lmarrow/nyxkernel/kernel/driver/keyboard"
	"github.com/lmarrow/nyxkernel/kernel/driver/serial"
	"github.com/lmarrow/nyxkernel/kernel/gate"
	"github.com/lmarrow/nyxkernel/kernel/hal"
	"github.com/lmarrow/nyxkernel/kernel/heap"
	"github.com/lmarrow/nyxkernel/kernel/irq"
	"github.com/lmarrow/nyxkernel/kernel/mem"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm/allocator"
	"github.com/lmarrow/nyxkernel/kernel/mem/vmm"
	"github.com/lmarrow/nyxkernel/kernel/multiboot"
	"github.com/lmarrow/nyxkernel/kernel/pic"
	"github.com/lmarrow/nyxkernel/kernel/proc"
	kernelsyscall "github.com/lmarrow/nyxkernel/kernel/syscall"
	"github.com/lmarrow/nyxkernel/kernel/userprog"
)

const keyboardIRQLine = 1

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoFramebuffer = &kernel.Error{Module: "kmain", Message: "bootloader did not report a usable framebuffer"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal(mem.VgaPhysAddr)
	hal.ActiveTerminal.Clear()

	mbStart, mbEnd := multibootBlobRange(multibootInfoPtr)

	err := vmm.KernelRemap(kernelStart, kernelEnd, mbStart, mbEnd, continueBoot)
	if err != nil {
		panic(err)
	}

	// KernelRemap never returns on success; reaching this line means the
	// higher-half jump itself failed before it could even attempt that.
	kernel.Panic(errKmainReturned)
}

// multibootBlobRange recovers the physical extent of the multiboot info
// blob rt0 handed Kmain, so KernelRemap can reserve it the same way it
// reserves the kernel image (spec.md §4.F step 2).
func multibootBlobRange(multibootInfoPtr uintptr) (start, end uintptr) {
	size := *(*uint32)(unsafe.Pointer(multibootInfoPtr))
	return multibootInfoPtr, multibootInfoPtr + uintptr(size)
}

// continueBoot is spec.md §4.F step 9: everything that must happen on the
// rebased stack, after the higher-half jump, before interrupts are safe to
// enable and before the ring-3 transition can run.
func continueBoot() {
	hal.RebindHigherHalf()

	if err := vmm.Init(); err != nil {
		panic(err)
	}

	// The kernel heap range was mapped back in KernelRemap step 6; seed the
	// allocator over it now that high addresses are live, and let the frame
	// allocator's free list grow into it instead of staying fixed-size.
	heap.Kernel.Init(mem.KernelHeapStart, mem.KernelHeapSize)
	allocator.SetFreeListGrowthFn(allocator.GrowFreeListFromKernelHeap)

	gate.Init()
	pic.Init(gate.IRQBaseVector)
	serial.Init()
	irq.HandleIRQ(keyboardIRQLine, func(*irq.Frame, *irq.Regs) { keyboard.HandleScancode() })

	if err := initFramebuffer(); err != nil {
		panic(err)
	}

	cpu.EnableInterrupts()

	// spec.md §4.F step 9's final act: clear P4 slot 0 so nothing can still
	// fetch or dereference through the original identity mapping. Everything
	// above this line that needed a low-mapped pointer (the multiboot blob,
	// read by initFramebuffer) has already run.
	vmm.UnmapLowerHalf()

	if err := proc.Start(userprog.EntryPoint()); err != nil {
		panic(err)
	}

	kernel.Panic(errKmainReturned)
}

// initFramebuffer maps the bootloader-reported linear framebuffer into the
// kernel's virtual address space and wires it up as the backing store for
// the DRAW family of syscalls (spec.md §4.I, syscalls 7-9).
func initFramebuffer() *kernel.Error {
	info := multiboot.GetFramebufferInfo()
	if info == nil || info.Type == multiboot.FramebufferTypeEGA {
		return errNoFramebuffer
	}

	size := mem.Size(uint64(info.Pitch) * uint64(info.Height))
	frame := pmm.FrameFromAddress(uintptr(info.PhysAddr))
	page, err := vmm.MapRegion(frame, size, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute)
	if err != nil {
		return err
	}

	kernelsyscall.InitFramebuffer(info.Width, info.Height, info.Pitch, page.Address())
	return nil
}
