// Package keyboard drives a PS/2 keyboard off IRQ1, translating set-1
// scancodes into ASCII and feeding a ring buffer that backs the READ_CHAR
// and CAN_READ_CHAR syscalls.
package keyboard

import "github.com/lmarrow/nyxkernel/kernel/cpu"

const dataPort = 0x60

const (
	scancodeLeftShift  = 0x2A
	scancodeRightShift = 0x36
	scancodeCapsLock   = 0x3A
	releaseBit         = 0x80
)

var (
	shiftActive    bool
	capsLockActive bool

	inbFn = cpu.Inb
)

// ringCapacity is a power of two so index wraparound is a cheap mask.
const ringCapacity = 256

// Ring is a fixed-capacity, single-producer/single-consumer byte queue.
// Per spec.md §5, Push (called from the IRQ1 handler) and Pop (called by
// whatever task services READ_CHAR) are not protected by a lock: the IRQ
// handler runs with interrupts disabled and this kernel is single-CPU, so
// the two can never race.
type Ring struct {
	buf        [ringCapacity]byte
	head, tail uint8 // tail == head means empty; full is handled by count
	count      uint16
}

// Push appends b to the ring, silently dropping it if the ring is full.
func (r *Ring) Push(b byte) {
	if int(r.count) == ringCapacity {
		return
	}
	r.buf[r.tail] = b
	r.tail++
	r.count++
}

// Pop removes and returns the oldest byte in the ring. ok is false if the
// ring is empty.
func (r *Ring) Pop() (b byte, ok bool) {
	if r.count == 0 {
		return 0, false
	}
	b = r.buf[r.head]
	r.head++
	r.count--
	return b, true
}

// Empty reports whether the ring currently holds no bytes.
func (r *Ring) Empty() bool {
	return r.count == 0
}

var buffer Ring

// HandleScancode is registered as the IRQ1 handler. It updates modifier
// state for the shift/caps-lock scancodes, ignores key-release codes (the
// high bit set) for every other key, and otherwise resolves the scancode
// through the lowercase/uppercase tables and pushes the resulting byte.
func HandleScancode() {
	scancode := inbFn(dataPort)

	switch scancode {
	case scancodeCapsLock:
		capsLockActive = !capsLockActive
		return
	case scancodeLeftShift, scancodeRightShift:
		shiftActive = true
		return
	case scancodeLeftShift | releaseBit, scancodeRightShift | releaseBit:
		shiftActive = false
		return
	}

	if scancode&releaseBit != 0 {
		return
	}

	if int(scancode) >= len(scancodeLower) {
		return
	}

	var ch byte
	if shiftActive || capsLockActive {
		ch = scancodeUpper[scancode]
	} else {
		ch = scancodeLower[scancode]
	}
	if ch == 0 {
		return
	}
	buffer.Push(ch)
}

// CanReadChar reports whether a translated character is waiting in the ring.
func CanReadChar() bool {
	return !buffer.Empty()
}

// ReadChar pops the oldest translated character off the ring, or 0 if none
// is available.
func ReadChar() byte {
	b, _ := buffer.Pop()
	return b
}
