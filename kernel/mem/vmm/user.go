package vmm

import "github.com/lmarrow/nyxkernel/kernel"

// markUserAccessibleFn indirects MarkUserAccessible's walk so tests can
// exercise it without a real page-table walk.
var markUserAccessibleFn = walk

// MarkUserAccessible sets FlagUserAccessible on every page-table entry from
// P4 down to the P1 entry covering virtAddr, so the CPU permits a ring-3
// instruction or data access through the whole translation path
// (spec.md §4.I's ring-3 transition step: "walk the current page tables
// from P4 down to the P1 containing the user entry point and set the USER
// bit on each intermediate entry"). Returns ErrInvalidMapping if any level
// along the path is not present.
func MarkUserAccessible(virtAddr uintptr) *kernel.Error {
	var err *kernel.Error

	markUserAccessibleFn(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		pte.SetFlags(FlagUserAccessible)
		return true
	})
	if err != nil {
		return err
	}

	// The entry-point page was already mapped before this call, so a stale
	// translation lacking the USER bit can still be cached; flush it or the
	// first ring-3 fetch faults.
	flushTLBEntryFn(virtAddr)
	return nil
}
