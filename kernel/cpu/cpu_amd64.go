package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register. The CPU populates
// CR2 with the faulting linear address whenever a page fault occurs.
func ReadCR2() uint64

// ReadCR3 returns the physical address of the currently loaded P4 table.
func ReadCR3() uint64

// EnablePaging sets CR0.WP (write-protect, so ring 0 honours the RW bit of
// present pages too) and EFER.NXE (so the NX page table bit is enforced).
// It is called once, early in KernelRemap, before any InactivePageTable is
// activated.
func EnablePaging()

// Rdmsr reads the model-specific register identified by id.
func Rdmsr(id uint32) uint64

// Wrmsr writes value to the model-specific register identified by id.
func Wrmsr(id uint32, value uint64)

// LoadGDT installs the GDT described by the 10-byte pseudo-descriptor at
// gdtDescriptorAddr (2-byte limit followed by an 8-byte base) and reloads
// CS/SS/DS/ES/FS/GS from the selectors supplied in codeSelector/dataSelector.
func LoadGDT(gdtDescriptorAddr uintptr, codeSelector, dataSelector uint16)

// LoadIDT installs the IDT described by the 10-byte pseudo-descriptor at
// idtDescriptorAddr.
func LoadIDT(idtDescriptorAddr uintptr)

// LoadTSS loads the task register with the given GDT selector.
func LoadTSS(tssSelector uint16)

// Outb writes a byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
