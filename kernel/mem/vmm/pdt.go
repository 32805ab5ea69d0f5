package vmm

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel"
	"github.com/lmarrow/nyxkernel/kernel/mem"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
)

var (
	// activePDTFn is used by tests to override calls to activePDT which
	// will cause a fault if called in user-mode.
	activePDTFn = activePDT

	// switchPDTFn is used by tests to override calls to switchPDT which
	// will cause a fault if called in user-mode.
	switchPDTFn = switchPDT

	// mapFn is used by tests and is automatically inlined by the compiler.
	mapFn = Map

	// mapTemporaryFn is used by tests and is automatically inlined by the compiler.
	mapTemporaryFn = MapTemporary

	// unmapFn is used by tests and is automatically inlined by the compiler.
	unmapFn = Unmap
)

// PageDirectoryTable describes the top-most table (P4) in the four-level
// paging scheme. It backs both the ActivePageTable (the P4 currently
// installed in CR3) and an InactivePageTable under construction — the two
// differ only in whether pdtFrame matches the physical address CR3
// currently holds, which every method below checks before deciding whether
// it needs a temporary mapping to reach the table's contents.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Init sets up the page table directory starting at the supplied physical
// frame. If the frame does not match the currently active PDT, Init treats it
// as a fresh, uninitialized InactivePageTable and:
//   - establishes a temporary mapping for it via MapTemporary (the fixed
//     tempMappingAddr page; missing intermediate tables come from the
//     global frame allocator); no TemporaryPage is involved
//   - clears its contents with mem.Memset
//   - installs the recursive self-map in the last table entry (slot 511)
//   - releases the temporary mapping
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	// Check active PDT physical address. If it matches the input pdt then
	// nothing more needs to be done.
	activePdtAddr := activePDTFn()
	if pdtFrame.Address() == activePdtAddr {
		return nil
	}

	// Create a temporary mapping for the pdt frame so we can work on it.
	pdtPage, err := mapTemporaryFn(pdtFrame)
	if err != nil {
		return err
	}

	// Clear the page contents and set up the recursive mapping for the
	// last PDT entry.
	mem.Memset(pdtPage.Address(), 0, mem.PageSize)
	lastPdtEntry := (*pageTableEntry)(unsafe.Pointer(pdtPage.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)))
	*lastPdtEntry = 0
	lastPdtEntry.SetFlags(FlagPresent | FlagRW)
	lastPdtEntry.SetFrame(pdtFrame)

	// Remove the temporary mapping.
	unmapFn(pdtPage)

	return nil
}

// Map establishes a mapping between a virtual page and a physical memory
// frame using this PDT. It behaves like the global Map() function but also
// supports editing an inactive PDT by temporarily redirecting the active
// PDT's recursive slot to this table's frame for the duration of the call —
// the mechanism spec.md's ActivePageTable.with describes.
func (pdt PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var (
		activePdtFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastPdtEntryAddr uintptr
		lastPdtEntry     *pageTableEntry
	)
	// If this table is not active we need to temporarily map it to the
	// last entry in the active PDT so we can access it using the recursive
	// virtual address scheme.
	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntryAddr = activePdtFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry = (*pageTableEntry)(unsafe.Pointer(lastPdtEntryAddr))
		lastPdtEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	err := mapFn(page, frame, flags)

	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntry.SetFrame(activePdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	return err
}

// Unmap removes a mapping previously installed by a call to Map() on this
// PDT. Like Map, it transparently supports inactive PDTs.
func (pdt PageDirectoryTable) Unmap(page Page) *kernel.Error {
	var (
		activePdtFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastPdtEntryAddr uintptr
		lastPdtEntry     *pageTableEntry
	)
	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntryAddr = activePdtFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry = (*pageTableEntry)(unsafe.Pointer(lastPdtEntryAddr))
		lastPdtEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	err := unmapFn(page)

	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntry.SetFrame(activePdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	return err
}

// Activate installs this page directory table as the active one (CR3 swap)
// and flushes the TLB — the operation spec.md calls ActivePageTable.swap.
func (pdt PageDirectoryTable) Activate() {
	switchPDTFn(pdt.pdtFrame.Address())
}

// With temporarily redirects the active PDT's recursive slot to point at
// this (inactive) table, runs f, then restores the previous recursive
// mapping. Every Map/Unmap issued by f against the active address space
// during the call actually lands in this inactive table — the mechanism
// KernelRemap uses to build the higher-half address space while the low
// address space is still live.
func (pdt PageDirectoryTable) With(temp *TemporaryPage, f func()) {
	var (
		activePdtFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastPdtEntryAddr = activePdtFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry     = (*pageTableEntry)(unsafe.Pointer(lastPdtEntryAddr))
	)

	lastPdtEntry.SetFrame(pdt.pdtFrame)
	flushTLBEntryFn(lastPdtEntryAddr)

	f()

	lastPdtEntry.SetFrame(activePdtFrame)
	flushTLBEntryFn(lastPdtEntryAddr)
}
