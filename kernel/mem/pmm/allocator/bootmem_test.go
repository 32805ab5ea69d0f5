package allocator

import (
	"testing"
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/driver/video/console"
	"github.com/lmarrow/nyxkernel/kernel/hal"
	"github.com/lmarrow/nyxkernel/kernel/mem/pmm"
	"github.com/lmarrow/nyxkernel/kernel/multiboot"
)

func TestBootMemoryAllocator(t *testing.T) {
	mockTTY()
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	// Keep the Multiboot2 info blob reservation well outside the regions
	// described by multibootMemoryMap so it never interferes with the
	// frame counts below.
	const noMbStart, noMbEnd = 0x80000000, 0x80001000

	specs := []struct {
		kernelStart, kernelEnd uintptr
		expAllocCount          uint64
	}{
		{
			// the kernel is loaded in a reserved memory region
			0xa0000,
			0xa0000,
			// region 1 extents get rounded to [0, 9f000] and provides 159 frames [0 to 158]
			// region 2 uses the original extents [100000 - 7fe0000] and provides 32480 frames [256-32735]
			159 + 32480,
		},
		{
			// the kernel is loaded at the beginning of region 1 taking 2.5 pages
			0x0,
			0x2800,
			159 - 3 + 32480,
		},
		{
			// the kernel is loaded at the end of region 1 taking 2.5 pages
			0x9c800,
			0x9f000,
			159 - 3 + 32480,
		},
		{
			// the kernel (after rounding) uses the entire region 1
			0x123,
			0x9fc00,
			32480,
		},
		{
			// the kernel is loaded at region 2 start + 2K taking 1.5 pages
			0x100800,
			0x102000,
			159 + 32480 - 2,
		},
	}

	for specIndex, spec := range specs {
		Init(spec.kernelStart, spec.kernelEnd, noMbStart, noMbEnd)

		for {
			frame, err := AllocFrame()
			if err != nil {
				if err == errOutOfMemory {
					break
				}
				t.Errorf("[spec %d] [frame %d] unexpected allocator error: %v", specIndex, theAllocator.allocCount, err)
				break
			}

			if frame != theAllocator.lastAllocFrame {
				t.Errorf("[spec %d] [frame %d] expected allocated frame to be %d; got %d", specIndex, theAllocator.allocCount, theAllocator.lastAllocFrame, frame)
			}

			if !frame.IsValid() {
				t.Errorf("[spec %d] [frame %d] expected IsValid() to return true", specIndex, theAllocator.allocCount)
			}
		}

		if theAllocator.allocCount != spec.expAllocCount {
			t.Errorf("[spec %d] expected allocator to allocate %d frames; allocated %d", specIndex, spec.expAllocCount, theAllocator.allocCount)
		}
	}
}

func TestFreeListReuse(t *testing.T) {
	Init(0xa0000, 0xa0000, 0x80000000, 0x80001000)

	f1, err := AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if err := DeallocFrame(f1); err != nil {
		t.Fatal(err)
	}

	f2, err := AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if f2 != f1 {
		t.Fatalf("expected a deallocated frame to be reused first; got %d, want %d", f2, f1)
	}
}

func TestFreeListGrowth(t *testing.T) {
	defer func() { theAllocator.free.growFn = nil }()

	Init(0xa0000, 0xa0000, 0x80000000, 0x80001000)

	grown := false
	SetFreeListGrowthFn(func(oldCapacity int) []pmm.Frame {
		grown = true
		return make([]pmm.Frame, oldCapacity*2)
	})

	for i := 0; i < initialFreeListCapacity+1; i++ {
		if err := DeallocFrame(pmm.Frame(i)); err != nil {
			t.Fatalf("unexpected error growing free list: %v", err)
		}
	}

	if !grown {
		t.Fatal("expected free list growth callback to be invoked")
	}
}

func mockTTY() []byte {
	mockConsoleFb := make([]byte, 160*25)
	mockConsole := &console.Ega{}
	mockConsole.Init(80, 25, uintptr(unsafe.Pointer(&mockConsoleFb[0])))
	hal.ActiveTerminal.AttachTo(mockConsole)

	return mockConsoleFb
}

var (
	// A dump of multiboot data when running under qemu containing only the
	// memory region tag. The dump encodes the following available memory
	// regions:
	// [     0 -   9fc00] length:    654336
	// [100000 - 7fe0000] length: 133038080
	multibootMemoryMap = []byte{
		72, 5, 0, 0, 0, 0, 0, 0,
		6, 0, 0, 0, 160, 0, 0, 0, 24, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 252, 9, 0, 0, 0, 0, 0,
		1, 0, 0, 0, 0, 0, 0, 0, 0, 252, 9, 0, 0, 0, 0, 0,
		0, 4, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 15, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 16, 0, 0, 0, 0, 0,
		0, 0, 238, 7, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 254, 7, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 252, 255, 0, 0, 0, 0,
		0, 0, 4, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
		9, 0, 0, 0, 212, 3, 0, 0, 24, 0, 0, 0, 40, 0, 0, 0,
		21, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 27, 0, 0, 0,
		1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 16, 0, 0, 16, 0, 0,
		24, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)
