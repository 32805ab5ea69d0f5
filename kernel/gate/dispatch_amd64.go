package gate

import (
	"unsafe"

	"github.com/lmarrow/nyxkernel/kernel/irq"
)

// trapFrame mirrors the stack shape commonTrampoline and the syscall stub
// (gate_amd64.s) leave behind after saving the GPRs: the 15 saved registers
// (rax pushed first, so it ends up deepest; r15 pushed last, so it sits on
// top), the vector and error code the stub pushed (or a zero placeholder for
// vectors the CPU itself doesn't supply one for), then the CPU's own
// exception frame.
type trapFrame struct {
	r15, r14, r13, r12, r11, r10, r9, r8 uint64
	bp, di, si, dx, cx, bx, ax           uint64
	vector, errorCode                    uint64
	rip, cs, rflags, rsp, ss             uint64
}

// framePtr is written by the assembly trampoline, just before it calls into
// Go, with the address of the trapFrame it just built on the stack. There is
// exactly one trap in flight at a time on this single-CPU kernel, so a
// package-level variable is sufficient; nothing else reads or writes it.
var framePtr uintptr

func (tf *trapFrame) regs() irq.Regs {
	return irq.Regs{
		RAX: tf.ax, RBX: tf.bx, RCX: tf.cx, RDX: tf.dx,
		RSI: tf.si, RDI: tf.di, RBP: tf.bp,
		R8: tf.r8, R9: tf.r9, R10: tf.r10, R11: tf.r11,
		R12: tf.r12, R13: tf.r13, R14: tf.r14, R15: tf.r15,
	}
}

func (tf *trapFrame) frame() irq.Frame {
	return irq.Frame{RIP: tf.rip, CS: tf.cs, RFlags: tf.rflags, RSP: tf.rsp, SS: tf.ss}
}

// dispatchFromAsm is called by commonTrampoline for every exception and IRQ
// vector. Any changes a handler makes to the reconstructed Regs/Frame are not
// propagated back to the stack; this kernel's handlers only mutate process
// or device state, never resume execution at a different context.
func dispatchFromAsm() {
	tf := (*trapFrame)(unsafe.Pointer(framePtr))
	regs := tf.regs()
	frame := tf.frame()
	irq.Dispatch(uint8(tf.vector), tf.errorCode, &frame, &regs)
}

// SyscallHandler is invoked for every ring-3 INT 0x80, with the syscall
// number in num and its single argument in arg, and must return the value
// ring 3 sees in rax. kernel/syscall installs the real dispatch table during
// boot; until then every syscall is rejected.
var SyscallHandler = func(num, arg uint64) uint64 { return ^uint64(0) }

// syscallDispatch is called by the isr128 stub. It reads the syscall number
// and argument directly out of the saved rax/rdi slots and writes the
// handler's result back into the saved rax slot, so the trampoline's restore
// sequence hands it to ring 3 in rax.
func syscallDispatch() {
	tf := (*trapFrame)(unsafe.Pointer(framePtr))
	tf.ax = SyscallHandler(tf.ax, tf.di)
}
