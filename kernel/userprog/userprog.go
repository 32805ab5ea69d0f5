// Package userprog holds the kernel's built-in ring-3 demo program: a tight
// assembly loop that issues WRITE_CHAR syscalls, compiled straight into the
// kernel image rather than loaded from a separate user binary.
//
// spec.md §4.I's own open question flags this: marking this code's page
// USER-accessible so the CPU will fetch it at ring 3, instead of copying it
// into separately-allocated user-only pages, is the same hole the original
// implementation's jump_to_ring3 comment concedes is a security bug. This
// port preserves the hole as-is rather than papering over it with a loader
// this spec never asked for.
package userprog

import "reflect"

// Entry is the ring-3 demo program's code. It is never called directly from
// Go — proc.Start transitions to it via iretq — so its only use from Go is
// taking its address.
func Entry()

// EntryPoint returns the address Entry's machine code starts at, suitable
// for proc.Start's entryPoint argument.
func EntryPoint() uintptr {
	return reflect.ValueOf(Entry).Pointer()
}
