package vmm

import "testing"

func TestUnmapLowerHalfClearsSlotZeroAndReloadsCR3(t *testing.T) {
	defer func(orig func(uintptr, pageTableWalker)) { unmapLowerHalfWalkFn = orig }(unmapLowerHalfWalkFn)
	defer func(orig func() uintptr) { activePDTForUnmapFn = orig }(activePDTForUnmapFn)
	defer func(orig func(uintptr)) { switchPDTForUnmapFn = orig }(switchPDTForUnmapFn)

	var slotZero pageTableEntry
	slotZero.SetFlags(FlagPresent | FlagRW)

	unmapLowerHalfWalkFn = func(virtAddr uintptr, walkFn pageTableWalker) {
		if virtAddr != 0 {
			t.Fatalf("expected UnmapLowerHalf to walk virtAddr 0; got %#x", virtAddr)
		}
		walkFn(0, &slotZero)
	}

	const fakePdtAddr = uintptr(0xDEAD_B000)
	activePDTForUnmapFn = func() uintptr { return fakePdtAddr }

	var reloadedWith uintptr
	switchPDTForUnmapFn = func(pdtPhysAddr uintptr) { reloadedWith = pdtPhysAddr }

	UnmapLowerHalf()

	if slotZero != 0 {
		t.Fatalf("expected slot 0 to be cleared; got %#x", slotZero)
	}
	if reloadedWith != fakePdtAddr {
		t.Fatalf("expected CR3 reload with %#x; got %#x", fakePdtAddr, reloadedWith)
	}
}
