// Package gate builds and installs the GDT, TSS and IDT this kernel runs
// with, and carries the low-level interrupt trampolines (gate_amd64.s) that
// turn a CPU trap into a call to kernel/irq.Dispatch or, for vector 0x80,
// into a syscall dispatch.
package gate

// Init builds the TSS, then builds and loads the GDT (with its embedded TSS
// descriptor), then the IDT, in that order: the GDT's descriptor for the TSS
// embeds the TSS's address, so the TSS comes first, and the IDT's
// kernel-code-segment selector comes from the GDT, so the GDT precedes it.
func Init() {
	buildTSS()
	buildGDT()
	buildIDT()
}
