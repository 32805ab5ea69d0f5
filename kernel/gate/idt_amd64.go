package gate

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/cpu"
)

// SyscallVector is the software-interrupt vector ring-3 code uses to reach
// the kernel (spec.md §6's "syscall vector = 0x80").
const SyscallVector = 0x80

// IRQBaseVector is the IDT vector the PIC remaps IRQ0 to (spec.md §6's "PIC
// remap = {32, 40}" — 32 is the master's offset). kernel/pic reads it when
// programming the controllers so the two packages can never disagree.
const IRQBaseVector = 32

const irqBaseVector = IRQBaseVector

const (
	gateTypeInterrupt = 0xE // interrupt gate: IF is cleared on entry
	gateTypeTrap      = 0xF // trap gate: IF is left alone

	istDoubleFault = 1
)

// idtEntry is one 64-bit-mode IDT gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	istAndZero uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func (e *idtEntry) set(handler uintptr, selector uint16, ist uint8, dpl uint8, gateType uint8) {
	e.offsetLow = uint16(handler)
	e.offsetMid = uint16(handler >> 16)
	e.offsetHigh = uint32(handler >> 32)
	e.selector = selector
	e.istAndZero = ist & 0x7
	e.typeAttr = accPresent | (dpl << 5) | gateType
}

var (
	theIDT           [256]idtEntry
	theIDTDescriptor descriptorPtr
)

// stubAddr is implemented in gate_amd64.s: it returns the entry address of
// the assembly trampoline generated for the given vector.
func stubAddr(vector uint8) uintptr

func buildIDT() {
	for v := 0; v < 32; v++ {
		ist := uint8(0)
		if v == 8 {
			ist = istDoubleFault
		}
		theIDT[v].set(stubAddr(uint8(v)), KernelCSSelector, ist, 0, gateTypeInterrupt)
	}

	for irq := 0; irq < 16; irq++ {
		v := irqBaseVector + irq
		theIDT[v].set(stubAddr(uint8(v)), KernelCSSelector, 0, 0, gateTypeInterrupt)
	}

	theIDT[SyscallVector].set(stubAddr(SyscallVector), KernelCSSelector, 0, 3, gateTypeInterrupt)

	theIDTDescriptor.limit = uint16(unsafe.Sizeof(theIDT)) - 1
	theIDTDescriptor.base = uint64(uintptr(unsafe.Pointer(&theIDT[0])))

	cpu.LoadIDT(uintptr(unsafe.Pointer(&theIDTDescriptor)))
}
