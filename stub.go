package main

import "github.com/lmarrow/nyxkernel/kernel/kmain"

// These globals are populated by the rt0 assembly stub before it calls
// main: multibootInfoPtr holds the pointer GRUB passes in RDI, and
// kernelStartAddr/kernelEndAddr are patched in by the linker script from the
// kernel image's ELF extent.
var (
	multibootInfoPtr uintptr
	kernelStartAddr  uintptr
	kernelEndAddr    uintptr
)

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away
// the real kernel code.
//
// Global variables are passed as arguments to Kmain to prevent the compiler
// from inlining the call and removing Kmain from the generated object file.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStartAddr, kernelEndAddr)
}
