package pmm

import (
	"testing"

	"github.com/lmarrow/nyxkernel/kernel/mem"
)

func TestFrameRoundTrip(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.IsValid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<mem.PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame %d Address() to return %x; got %x", frameIndex, exp, got)
		}

		if got := FrameFromAddress(frame.Address()); got != frame {
			t.Errorf("expected FrameFromAddress(%x) to return %d; got %d", frame.Address(), frameIndex, got)
		}
	}

	if InvalidFrame.IsValid() {
		t.Error("expected InvalidFrame.IsValid() to return false")
	}
}

func TestFrameFromAddressRoundsDown(t *testing.T) {
	addr := uintptr(0x1234) + uintptr(mem.PageSize)
	if got, exp := FrameFromAddress(addr), Frame(2); got != exp {
		t.Errorf("expected FrameFromAddress(%x) to return %d; got %d", addr, exp, got)
	}
}
