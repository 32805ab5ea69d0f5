// Package hal wires up the hardware abstraction the kernel needs before any
// other subsystem (physical memory, paging, heap) is available: a console it
// can print to.
package hal

import (
	"github.com/lmarrow/nyxkernel/kernel/driver/tty"
	"github.com/lmarrow/nyxkernel/kernel/driver/video/console"
	"github.com/lmarrow/nyxkernel/kernel/mem"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal. It is the
	// output of kernel/kfmt/early's Printf.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal sets up the EGA text console at its fixed low identity
// address so that early boot code has somewhere to print to before paging
// has rebased anything. Re-run after the higher-half jump with the high
// alias of the VGA frame to keep writing to the same physical buffer.
func InitTerminal(fbPhysAddr uintptr) {
	egaConsole.Init(80, 25, fbPhysAddr)
	ActiveTerminal.AttachTo(egaConsole)
}

// RebindHigherHalf re-attaches the console to the high alias of the VGA
// buffer. Must be called once KernelRemap has mapped VgaPhysAddr+KernelOffset
// and the higher-half jump has completed, and before the lower half is
// unmapped (spec.md §4.F step 9).
func RebindHigherHalf() {
	InitTerminal(mem.KernelOffset + mem.VgaPhysAddr)
}
