package keyboard

import "testing"

func withScancode(t *testing.T, codes ...uint8) {
	t.Helper()
	saved := inbFn
	t.Cleanup(func() { inbFn = saved })

	i := 0
	inbFn = func(port uint16) uint8 {
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c
	}
}

func resetState(t *testing.T) {
	t.Helper()
	buffer = Ring{}
	shiftActive, capsLockActive = false, false
}

func TestRingFIFOOrder(t *testing.T) {
	var r Ring
	r.Push('a')
	r.Push('b')
	r.Push('c')

	for _, want := range []byte("abc") {
		got, ok := r.Pop()
		if !ok || got != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
		}
	}
	if !r.Empty() {
		t.Fatal("expected the ring to be empty after draining everything pushed")
	}
}

func TestRingDropsOnOverflow(t *testing.T) {
	var r Ring
	for i := 0; i < ringCapacity+10; i++ {
		r.Push('x')
	}
	count := 0
	for !r.Empty() {
		r.Pop()
		count++
	}
	if count != ringCapacity {
		t.Fatalf("expected exactly %d bytes retained, got %d", ringCapacity, count)
	}
}

func TestHandleScancodeTranslatesLowercaseMakeCode(t *testing.T) {
	resetState(t)
	withScancode(t, 0x1E) // 'a'
	HandleScancode()

	if !CanReadChar() {
		t.Fatal("expected a character to be available")
	}
	if got := ReadChar(); got != 'a' {
		t.Fatalf("expected 'a', got %q", got)
	}
}

func TestHandleScancodeIgnoresKeyRelease(t *testing.T) {
	resetState(t)
	withScancode(t, 0x1E|releaseBit)
	HandleScancode()

	if CanReadChar() {
		t.Fatal("expected a key release to produce no character")
	}
}

func TestHandleScancodeAppliesShift(t *testing.T) {
	resetState(t)
	withScancode(t, scancodeLeftShift, 0x1E) // shift down, then 'a'
	HandleScancode()
	HandleScancode()

	if got := ReadChar(); got != 'A' {
		t.Fatalf("expected shifted 'A', got %q", got)
	}
}

func TestHandleScancodeTogglesCapsLock(t *testing.T) {
	resetState(t)
	withScancode(t, scancodeCapsLock, 0x1E)
	HandleScancode()
	HandleScancode()

	if got := ReadChar(); got != 'A' {
		t.Fatalf("expected caps-lock to uppercase 'a' into 'A', got %q", got)
	}
}
