package vmm

import "github.com/lmarrow/nyxkernel/kernel/cpu"

// unmapLowerHalfWalkFn indirects UnmapLowerHalf's walk so tests can exercise
// it without a real page-table walk.
var unmapLowerHalfWalkFn = walk

var (
	activePDTForUnmapFn = cpu.ActivePDT
	switchPDTForUnmapFn = cpu.SwitchPDT
)

// UnmapLowerHalf clears P4 slot 0 and reloads CR3 to flush the entire TLB,
// completing spec.md §4.F step 9: once the higher-half jump and every
// rebased pointer it depends on are in place, nothing should still be able
// to execute or dereference through the original identity-mapped low half.
func UnmapLowerHalf() {
	unmapLowerHalfWalkFn(0, func(pteLevel uint8, pte *pageTableEntry) bool {
		*pte = 0
		return false
	})

	switchPDTForUnmapFn(activePDTForUnmapFn())
}
