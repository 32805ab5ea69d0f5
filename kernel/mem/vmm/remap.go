package vmm

import (
	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/cpu"
	"github.com/lmarrow/nyxkernel/kernel/mem"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm/allocator"
	"github.com/lmarrow/nyxkernel/kernel/multiboot"
)

// temporaryPageVaddr is an arbitrary, otherwise-unused virtual address used
// to scratch-map page-table frames while KernelRemap constructs the new P4
// (spec.md §4.F step 3's "0xCAFE_BABE × 4096" example address).
const temporaryPageVaddr = uintptr(0xCAFE_BABE) * uintptr(mem.PageSize)

// continuationFn is the Go function higherHalfContinuation calls once
// execution resumes on the rebased stack. It exists only so the assembly
// trampoline (higherHalfJump) has one fixed, named Go symbol to JMP into;
// every further indirection happens through an ordinary Go call.
var continuationFn func()

// KernelRemap builds a fresh P4 that double-maps the kernel's ELF sections,
// the multiboot info blob, and the VGA text frame at both their boot-time
// identity addresses and mem.KernelOffset, switches CR3 to it, maps the
// kernel heap range, and performs the higher-half jump — the full state
// machine described by spec.md §4.F. On success, control passes to
// continuation on the rebased stack and KernelRemap never returns to its
// caller; it only returns (with an error) if a step before the jump fails.
func KernelRemap(kernelStart, kernelEnd, mbStart, mbEnd uintptr, continuation func()) *kernel.Error {
	// Step 1: EFER.NXE + CR0.WP so the NX bit and RW bit are both honoured.
	cpu.EnablePaging()

	// Step 2: frame allocator over the mmap, reserving the kernel image and
	// the multiboot info blob. Every Map call below (and every later caller
	// of vmm.Map/MapRegion) reaches frameAllocator for intermediate
	// page-table frames, so it must be wired before the first one runs.
	allocator.Init(kernelStart, kernelEnd, mbStart, mbEnd)
	SetFrameAllocator(allocator.AllocFrame)

	// Step 3: a scratch TemporaryPage and a fresh frame for the new P4.
	var tempFrames [3]pmm.Frame
	for i := range tempFrames {
		f, err := allocator.AllocFrame()
		if err != nil {
			return err
		}
		tempFrames[i] = f
	}
	temp := NewTemporaryPage(PageFromAddress(temporaryPageVaddr), tempFrames)

	newPdtFrame, err := allocator.AllocFrame()
	if err != nil {
		return err
	}

	var inactive PageDirectoryTable
	if err := inactive.Init(newPdtFrame); err != nil {
		return err
	}

	// Step 4: populate the new table while the old one is still live.
	var stepErr *kernel.Error
	inactive.With(temp, func() {
		stepErr = remapElfSections()
		if stepErr != nil {
			return
		}
		stepErr = remapMultibootBlob(mbStart, mbEnd)
		if stepErr != nil {
			return
		}
		stepErr = remapVgaFrame()
	})
	if stepErr != nil {
		return stepErr
	}

	// Step 5: make the new table live.
	inactive.Activate()

	// Step 6: map the kernel heap range at high addresses (RSP is still
	// low here, but Map only ever dereferences page-table frames, which
	// are already reachable through the recursive mapping regardless of
	// which stack is live).
	heapPages := mem.KernelHeapSize.Pages()
	page := PageFromAddress(mem.KernelHeapStart)
	for i := uint32(0); i < heapPages; i, page = i+1, page+1 {
		frame, err := allocator.AllocFrame()
		if err != nil {
			return err
		}
		if err := Map(page, frame, FlagPresent|FlagRW|FlagNoExecute); err != nil {
			return err
		}
	}

	// Step 7: rebase the frame allocator's own bookkeeping pointers.
	allocator.UpdatePointersToHigh(mem.KernelOffset)

	// Step 8: the jump. Must not return.
	continuationFn = continuation
	higherHalfJump(mem.KernelOffset)
	return nil
}

// The following indirections exist purely so tests can exercise the
// remap* helpers without a real page-table/bootloader handoff; production
// code always runs with the defaults.
var (
	remapMapFn         = Map
	remapTranslateFn   = Translate
	visitElfSectionsFn = multiboot.VisitElfSections
)

// remapElfSections double-maps every SHF_ALLOC kernel ELF section, deriving
// page flags from SHF_WRITE/SHF_EXECINSTR (spec.md §4.F step 4a).
func remapElfSections() *kernel.Error {
	var stepErr *kernel.Error

	visitElfSectionsFn(func(section *multiboot.ElfSection) bool {
		if section.Flags&multiboot.ElfSectionAllocated == 0 {
			return true
		}

		flags := FlagPresent
		if section.Flags&multiboot.ElfSectionWritable != 0 {
			flags |= FlagRW
		}
		if section.Flags&multiboot.ElfSectionExecutable == 0 {
			flags |= FlagNoExecute
		}

		startFrame := pmm.FrameFromAddress(uintptr(section.Addr))
		endFrame := pmm.FrameFromAddress(uintptr(section.Addr+section.Size-1)) + 1
		for f := startFrame; f < endFrame; f++ {
			if stepErr = remapMapFn(Page(f), f, flags); stepErr != nil {
				return false
			}
			if stepErr = remapMapFn(PageFromAddress(f.Address()+mem.KernelOffset), f, flags); stepErr != nil {
				return false
			}
		}
		return true
	})

	return stepErr
}

// remapMultibootBlob double-maps, read-only, every frame of the multiboot
// info blob not already mapped by an overlapping ELF section (spec.md §4.F
// step 4b).
func remapMultibootBlob(mbStart, mbEnd uintptr) *kernel.Error {
	startFrame := pmm.FrameFromAddress(mbStart)
	endFrame := pmm.FrameFromAddress(mbEnd-1) + 1

	for f := startFrame; f < endFrame; f++ {
		if _, err := remapTranslateFn(f.Address()); err == nil {
			continue
		}

		if err := remapMapFn(Page(f), f, FlagPresent|FlagNoExecute); err != nil {
			return err
		}
		if err := remapMapFn(PageFromAddress(f.Address()+mem.KernelOffset), f, FlagPresent|FlagNoExecute); err != nil {
			return err
		}
	}

	return nil
}

// remapVgaFrame identity- and high-maps the VGA text frame, writable
// (spec.md §4.F step 4c).
func remapVgaFrame() *kernel.Error {
	vgaFrame := pmm.FrameFromAddress(mem.VgaPhysAddr)

	if err := remapMapFn(Page(vgaFrame), vgaFrame, FlagPresent|FlagRW|FlagNoExecute); err != nil {
		return err
	}
	return remapMapFn(PageFromAddress(mem.VgaPhysAddr+mem.KernelOffset), vgaFrame, FlagPresent|FlagRW|FlagNoExecute)
}

// higherHalfContinuation is the fixed jump target higherHalfJump's raw JMP
// lands on. By the time it starts executing, SP already carries
// +mem.KernelOffset and BP is zero; everything after this point is ordinary
// Go code running on the rebased stack.
func higherHalfContinuation() {
	continuationFn()
}

// higherHalfJump adds delta to SP, zeroes BP, and jumps to
// higherHalfContinuation. Implemented in remap_amd64.s; never returns.
func higherHalfJump(delta uintptr)
