package gate

import "unsafe"

// doubleFaultStackSize is the dedicated 16 KiB stack the TSS's IST[0] (IST
// index 1) points #DF at, per spec.md §4.H.
const doubleFaultStackSize = 16 * 1024

// tss is the 64-bit Task State Segment. Only rsp0 (the stack loaded on a
// ring-3 -> ring-0 transition) and ist1 (the stack #DF switches to,
// regardless of the privilege level it interrupted) are used; this kernel
// never performs a hardware task switch.
type tss struct {
	reserved0 uint32
	rsp0      uint64
	rsp1      uint64
	rsp2      uint64
	reserved1 uint64
	ist1      uint64
	ist2      uint64
	ist3      uint64
	ist4      uint64
	ist5      uint64
	ist6      uint64
	ist7      uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

var (
	theTSS              tss
	doubleFaultStack     [doubleFaultStackSize]byte
)

// SetKernelStack updates the TSS's rsp0 field, the stack the CPU switches
// to on any ring-3 -> ring-0 transition (interrupt, exception or syscall).
func SetKernelStack(rsp0 uintptr) {
	theTSS.rsp0 = uint64(rsp0)
}

func buildTSS() {
	// The IST1 stack grows down from the top of doubleFaultStack.
	top := uintptr(unsafe.Pointer(&doubleFaultStack[0])) + uintptr(len(doubleFaultStack))
	theTSS.ist1 = uint64(top)
}
