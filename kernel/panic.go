package kernel

import (
	"github.com/lmarrow/nyxkernel/kernel/cpu"
	"github.com/lmarrow/nyxkernel/kernel/driver/video/console"
	"github.com/lmarrow/nyxkernel/kernel/hal"
	"github.com/lmarrow/nyxkernel/kernel/kfmt/early"
)

var (
	// The following indirections are mocked by tests and automatically
	// inlined by the compiler in the production build.
	cpuHaltFn             = cpu.Halt
	cpuDisableInterruptFn = cpu.DisableInterrupts
	paintFn               = hal.ActiveTerminal.Paint

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic).
//
// Per spec.md §7, a kernel panic is one of the four fatal invariant
// violations (invalid-address, out-of-memory, already-mapped, not-mapped):
// interrupts are disabled, the screen is painted red, the message is
// printed, and the CPU halts forever.
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	cpuDisableInterruptFn()
	paintFn(console.Red)

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
