// Package syscall implements the ring-3 syscall dispatch table (spec.md
// §4.I) and installs itself as kernel/gate's SyscallHandler. A single 64-bit
// argument is all any syscall number carries; the dispatcher trusts the
// argument as a valid user pointer wherever one is needed, exactly as
// spec.md §4.I's own "does not validate" closing note describes.
package syscall

import (
	"reflect"
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/driver/keyboard"
	"github.com/lmarrow/nyxkernel/kernel/driver/serial"
	"github.com/lmarrow/nyxkernel/kernel/driver/video/console"
	"github.com/lmarrow/nyxkernel/kernel/gate"
	"github.com/lmarrow/nyxkernel/kernel/hal"
	"github.com/lmarrow/nyxkernel/kernel/proc"
)

// Syscall numbers, spec.md §4.I's dispatch table.
const (
	Noop            = 0
	WriteChar       = 1
	ReadChar        = 2
	Write           = 3
	Malloc          = 4
	Free            = 5
	CanReadChar     = 6
	Draw            = 7
	GetScreenWidth  = 8
	GetScreenHeight = 9
	Exit            = 60
)

// unknownSyscallResult is what the dispatcher returns for any number not in
// the table above.
const unknownSyscallResult = ^uint64(0)

// frameBuffer backs the DRAW/GET_SCREEN_WIDTH/GET_SCREEN_HEIGHT syscalls.
// InitFramebuffer must be called once the framebuffer's physical memory has
// been mapped, before any ring-3 process can reach these syscall numbers.
var frameBuffer console.Framebuffer

// InitFramebuffer wires the linear pixel view the DRAW family of syscalls
// draws into. Mirrors hal.InitTerminal taking an already-mapped address
// rather than mapping it itself.
func InitFramebuffer(width, height, pitch uint32, fbVirtAddr uintptr) {
	frameBuffer.Init(width, height, pitch, fbVirtAddr)
}

// init installs Dispatch as the real syscall handler, replacing
// kernel/gate's reject-everything placeholder.
func init() {
	gate.SyscallHandler = Dispatch
}

// processHeap narrows *proc.Process down to the two methods MALLOC/FREE
// need, so tests can fake process heap behaviour without driving a real
// ring-3 transition to get a *proc.Process.
type processHeap interface {
	Allocate(size uintptr) uintptr
	Free(ptr uintptr)
}

var (
	canReadCharFn   = keyboard.CanReadChar
	readCharFn      = keyboard.ReadChar
	serialWriteFn   = serial.WriteByte
	terminalWriteFn = func(b byte) { hal.ActiveTerminal.WriteByte(b) }

	activeProcessFn = func() processHeap {
		p := proc.Active()
		if p == nil {
			return nil
		}
		return p
	}

	drawFn         = frameBuffer.Draw
	screenWidthFn  = frameBuffer.Width
	screenHeightFn = frameBuffer.Height

	userCStringFn     = userCString
	userUint32SliceFn = userUint32Slice
)

// Dispatch is syscallDispatch's call target (gate.SyscallHandler). num and
// arg are the saved rax/rdi from the INT 0x80 stub; the returned value is
// written back into rax before iretq.
func Dispatch(num, arg uint64) uint64 {
	switch num {
	case Noop:
		return 0

	case WriteChar:
		writeChar(byte(arg))
		return 0

	case ReadChar:
		for !canReadCharFn() {
		}
		return uint64(readCharFn())

	case Write:
		for _, b := range userCStringFn(uintptr(arg)) {
			writeChar(b)
		}
		return 0

	case Malloc:
		p := activeProcessFn()
		if p == nil {
			return 0
		}
		return uint64(p.Allocate(uintptr(arg)))

	case Free:
		if p := activeProcessFn(); p != nil {
			p.Free(uintptr(arg))
		}
		return 0

	case CanReadChar:
		if canReadCharFn() {
			return 1
		}
		return 0

	case Draw:
		width, height := screenWidthFn(), screenHeightFn()
		pixels := userUint32SliceFn(uintptr(arg), int(width)*int(height))
		drawFn(pixels, width, height)
		return 0

	case GetScreenWidth:
		return uint64(screenWidthFn())

	case GetScreenHeight:
		return uint64(screenHeightFn())

	case Exit:
		return 0

	default:
		return unknownSyscallResult
	}
}

// writeChar prints a byte to both the serial port and the active video
// console, per spec.md §4.I's "serial (and/or framebuffer)" wording.
func writeChar(b byte) {
	serialWriteFn(b)
	terminalWriteFn(b)
}

// userCString scans user memory starting at addr for a NUL terminator and
// returns the bytes preceding it.
func userCString(addr uintptr) []byte {
	var out []byte
	for p := addr; ; p++ {
		b := *(*byte)(unsafe.Pointer(p))
		if b == 0 {
			return out
		}
		out = append(out, b)
	}
}

// userUint32Slice builds a slice view over n uint32s of user memory starting
// at addr, without copying.
func userUint32Slice(addr uintptr, n int) []uint32 {
	var s []uint32
	*(*reflect.SliceHeader)(unsafe.Pointer(&s)) = reflect.SliceHeader{
		Data: addr,
		Len:  n,
		Cap:  n,
	}
	return s
}
