package irq

// ExceptionNum identifies one of the CPU-reserved exception vectors (0-31)
// that can be passed to HandleException or HandleExceptionWithCode.
type ExceptionNum uint8

const (
	// DivideByZero is raised by the DIV/IDIV instructions.
	DivideByZero = ExceptionNum(0)
	// Debug is raised by single-step and breakpoint debug conditions.
	Debug = ExceptionNum(1)
	// NMI is the non-maskable interrupt.
	NMI = ExceptionNum(2)
	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = ExceptionNum(3)
	// Overflow is raised by the INTO instruction.
	Overflow = ExceptionNum(4)
	// BoundRangeExceeded is raised by the BOUND instruction.
	BoundRangeExceeded = ExceptionNum(5)
	// InvalidOpcode is raised when the CPU decodes an undefined instruction.
	InvalidOpcode = ExceptionNum(6)
	// DeviceNotAvailable is raised when an FPU instruction executes with no FPU present.
	DeviceNotAvailable = ExceptionNum(7)
	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is trying to invoke an exception
	// handler.
	DoubleFault = ExceptionNum(8)
	// InvalidTSS is raised when the CPU detects an invalid TSS segment
	// selector during a task switch.
	InvalidTSS = ExceptionNum(10)
	// SegmentNotPresent is raised when a loaded segment selector has its
	// present bit cleared.
	SegmentNotPresent = ExceptionNum(11)
	// StackSegmentFault is raised by stack operations that reference a
	// non-canonical address or a non-present stack segment.
	StackSegmentFault = ExceptionNum(12)
	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)
	// PageFaultException is raised when a PDT or PDT-entry is not present
	// or when a privilege and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
	// FPUError is raised by unmasked x87 FPU floating point exceptions.
	FPUError = ExceptionNum(16)
	// AlignmentCheck is raised by unaligned memory references when
	// alignment checking is enabled.
	AlignmentCheck = ExceptionNum(17)
	// MachineCheck is raised by a model-specific hardware failure.
	MachineCheck = ExceptionNum(18)
	// SIMDFPException is raised by unmasked SSE/SSE2/SSE3 floating point
	// exceptions.
	SIMDFPException = ExceptionNum(19)
)

// hasErrorCode reports whether the CPU pushes an error code to the stack
// for the given exception vector.
func (e ExceptionNum) hasErrorCode() bool {
	switch e {
	case 8, 10, 11, 12, 13, 14, 17:
		return true
	default:
		return false
	}
}

// ExceptionHandler handles an exception that does not push an error code to
// the stack. The supplied Frame and Regs are copies reconstructed by the
// gate trampoline; modifications to them are not propagated back to the
// interrupted context.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code to
// the stack.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

// IRQHandler handles a hardware interrupt request line (0-15).
type IRQHandler func(*Frame, *Regs)

const vectorCount = 256

var (
	exceptionHandlers         [vectorCount]ExceptionHandler
	exceptionHandlersWithCode [vectorCount]ExceptionHandlerWithCode
	irqHandlers               [16]IRQHandler

	// irqAckFn is invoked after an IRQ handler runs so the interrupt
	// controller can be notified that servicing is complete. It is wired
	// up by the pic package during its Init and left nil (a no-op) until
	// then so early boot faults do not need the PIC to be present.
	irqAckFn func(line uint8)
)

// HandleException registers an exception handler (without an error code)
// for the given exception vector.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given exception vector.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionHandlersWithCode[exceptionNum] = handler
}

// HandleIRQ registers a handler for hardware interrupt request line.
func HandleIRQ(line uint8, handler IRQHandler) {
	irqHandlers[line] = handler
}

// SetIRQAck registers the function invoked after every serviced IRQ so the
// interrupt controller can be told the line has been handled.
func SetIRQAck(ackFn func(line uint8)) {
	irqAckFn = ackFn
}

// Dispatch is invoked by the low-level interrupt trampoline installed by the
// gate package for every vector that fires. vector identifies the IDT entry
// that was triggered; errorCode is only meaningful when the vector is one of
// the CPU exceptions that push an error code.
func Dispatch(vector uint8, errorCode uint64, frame *Frame, regs *Regs) {
	switch {
	case vector < 32:
		e := ExceptionNum(vector)
		if e.hasErrorCode() {
			if h := exceptionHandlersWithCode[vector]; h != nil {
				h(errorCode, frame, regs)
				return
			}
		} else if h := exceptionHandlers[vector]; h != nil {
			h(frame, regs)
			return
		}
		unhandledException(e, errorCode, frame, regs)
	case vector >= irqBaseVector && vector < irqBaseVector+16:
		line := vector - irqBaseVector
		if h := irqHandlers[line]; h != nil {
			h(frame, regs)
		}
		if irqAckFn != nil {
			irqAckFn(line)
		}
	}
}

// irqBaseVector is the IDT vector the pic package remaps IRQ0 to, moving
// hardware interrupts past the CPU-reserved exception range.
const irqBaseVector = 32

func unhandledException(e ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	panicFn(nil)
	_ = e
	_ = errorCode
	_ = frame
	_ = regs
}
