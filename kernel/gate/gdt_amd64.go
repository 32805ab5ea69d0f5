package gate

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/cpu"
)

// Selector values into the GDT this package installs. The layout (spec.md
// §4.H) is: null | kernel-CS | kernel-DS | TSS (two 8-byte slots forming one
// 16-byte descriptor) | user-CS | user-DS.
const (
	KernelCSSelector = 0x08
	KernelDSSelector = 0x10
	tssSelector      = 0x18
	// UserCSSelector/UserDSSelector carry RPL 3 in their low two bits so
	// they can be loaded directly into CS/SS for the ring-3 iretq frame.
	UserCSSelector = 0x28 | 3
	UserDSSelector = 0x30 | 3
)

// gdtEntry is a classic 8-byte segment descriptor. The 64-bit code/data
// segments this kernel uses only consult the access byte and the L
// (long-mode) flag; base/limit are ignored by the CPU in 64-bit mode for
// anything but the TSS descriptor, but are still written for completeness.
type gdtEntry struct {
	limitLow  uint16
	baseLow   uint16
	baseMid   uint8
	access    uint8
	flagLimit uint8
	baseHigh  uint8
}

const (
	accPresent   = 1 << 7
	accDPL0      = 0 << 5
	accDPL3      = 3 << 5
	accDescType  = 1 << 4 // code/data, not a system descriptor
	accExecute   = 1 << 3
	accReadWrite = 1 << 1

	flagLong = 1 << 5 // L bit: 64-bit code segment
)

// tssDescriptor is the 16-byte system descriptor format the TSS selector
// needs (a plain gdtEntry is too narrow to hold a 64-bit base address).
type tssDescriptor struct {
	limitLow  uint16
	baseLow   uint16
	baseMid   uint8
	access    uint8
	flagLimit uint8
	baseHigh  uint8
	baseUpper uint32
	reserved  uint32
}

type gdtTable struct {
	null     gdtEntry
	kernelCS gdtEntry
	kernelDS gdtEntry
	tss      tssDescriptor
	userCS   gdtEntry
	userDS   gdtEntry
}

type descriptorPtr struct {
	limit uint16
	base  uint64
}

var (
	theGDT           gdtTable
	theGDTDescriptor descriptorPtr
)

func codeSegment(dpl uint8) gdtEntry {
	return gdtEntry{
		access:    accPresent | dpl | accDescType | accExecute | accReadWrite,
		flagLimit: flagLong,
	}
}

func dataSegment(dpl uint8) gdtEntry {
	return gdtEntry{
		access: accPresent | dpl | accDescType | accReadWrite,
	}
}

func (d *tssDescriptor) setBase(base uintptr, limit uint32) {
	d.limitLow = uint16(limit)
	d.baseLow = uint16(base)
	d.baseMid = uint8(base >> 16)
	d.access = accPresent | 0x9 // 64-bit TSS (available), DPL 0
	d.flagLimit = uint8(limit>>16) & 0x0f
	d.baseHigh = uint8(base >> 24)
	d.baseUpper = uint32(base >> 32)
}

// buildGDT populates theGDT/theGDTDescriptor with the layout spec.md §4.H
// describes, installs the TSS base address, loads the table and reloads
// the segment registers.
func buildGDT() {
	theGDT.kernelCS = codeSegment(accDPL0)
	theGDT.kernelDS = dataSegment(accDPL0)
	theGDT.userCS = codeSegment(accDPL3)
	theGDT.userDS = dataSegment(accDPL3)
	theGDT.tss.setBase(uintptr(unsafe.Pointer(&theTSS)), uint32(unsafe.Sizeof(theTSS))-1)

	theGDTDescriptor.limit = uint16(unsafe.Sizeof(theGDT)) - 1
	theGDTDescriptor.base = uint64(uintptr(unsafe.Pointer(&theGDT)))

	cpu.LoadGDT(uintptr(unsafe.Pointer(&theGDTDescriptor)), KernelCSSelector, KernelDSSelector)
	cpu.LoadTSS(tssSelector)
}
