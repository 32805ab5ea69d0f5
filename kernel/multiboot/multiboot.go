// Package multiboot provides a read-only view over the tag list that a
// Multiboot2-compliant bootloader hands off to kernel_main. The parser never
// copies bytes out of the blob; every accessor returns a reference into the
// bootloader-owned memory.
package multiboot

import "unsafe"

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the multiboot info section header.
type info struct {
	// Total size of multiboot info section.
	totalSize uint32

	// Always set to zero; reserved for future use
	reserved uint32
}

// tagHeader describes the header that precedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. According to the spec, each tag starts at an 8-byte
	// aligned address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// elfSectionsHeader describes the header for the ELF-sections tag.
type elfSectionsHeader struct {
	sectionCount uint32
	entrySize    uint32
	shndxStr     uint32
}

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FrameBufferTypeIndexed specifies a 256-color palette.
	FrameBufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// ElfSectionFlag describes the ELF section header sh_flags bits the kernel
// remap step inspects to derive page flags.
type ElfSectionFlag uint64

const (
	// ElfSectionWritable corresponds to SHF_WRITE.
	ElfSectionWritable ElfSectionFlag = 1 << 0
	// ElfSectionAllocated corresponds to SHF_ALLOC: the section occupies
	// memory during execution and must be mapped.
	ElfSectionAllocated ElfSectionFlag = 1 << 1
	// ElfSectionExecutable corresponds to SHF_EXECINSTR.
	ElfSectionExecutable ElfSectionFlag = 1 << 2
)

// ElfSection describes one entry of the kernel's ELF section header table,
// as handed off by the bootloader's elf-sections tag.
type ElfSection struct {
	NameOffset uint32
	Type       uint32
	Flags      ElfSectionFlag
	Addr       uint64
	Offset     uint64
	Size       uint64
}

// ElfSectionVisitor is invoked once per ELF section; return false to abort
// the scan early.
type ElfSectionVisitor func(*ElfSection) bool

var (
	infoData uintptr
)

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader.
type MemRegionVisitor func(entry *MemoryMapEntry)

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// VisitMemRegions invokes the supplied visitor for each memory region
// reported by the bootloader. Entry types outside the known range are
// normalized to MemReserved so that callers never have to special-case an
// unrecognized value.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	var entry *MemoryMapEntry
	for curPtr != endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		if entry.Type == 0 || entry.Type > memUnknown {
			entry.Type = MemReserved
		}

		visitor(entry)

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// VisitElfSections invokes the supplied visitor for each ELF section header
// reported by the bootloader's elf-sections tag. Used by the kernel remap
// step (spec.md §4.F) to double-map every allocated section.
func VisitElfSections(visitor ElfSectionVisitor) {
	curPtr, size := findTagByType(tagElfSymbols)
	if size == 0 {
		return
	}

	hdr := (*elfSectionsHeader)(unsafe.Pointer(curPtr))
	curPtr += uintptr(unsafe.Sizeof(*hdr))

	for i := uint32(0); i < hdr.sectionCount; i++ {
		section := (*ElfSection)(unsafe.Pointer(curPtr))
		if !visitor(section) {
			return
		}
		curPtr += uintptr(hdr.entrySize)
	}
}

// GetFramebufferInfo returns information about the framebuffer initialized by the
// bootloader. This function returns nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	var info *FramebufferInfo

	curPtr, size := findTagByType(tagFramebufferInfo)
	if size != 0 {
		info = (*FramebufferInfo)(unsafe.Pointer(curPtr))
	}

	return info
}

// BasicMemInfo returns the lower and upper memory sizes (in KB) reported by
// the bootloader's basic-meminfo tag. This tag only covers the legacy
// lower/upper regions (below 1MB and the first contiguous run above 1MB);
// VisitMemRegions's full memory map is authoritative whenever it is present,
// and this tag exists only as a fallback (original_source/main/bootinfo.cpp's
// get_mem_lower/get_mem_upper). Returns (0, 0) if the tag is absent.
func BasicMemInfo() (memLowerKB, memUpperKB uint32) {
	curPtr, size := findTagByType(tagBasicMemoryInfo)
	if size == 0 {
		return 0, 0
	}

	memLowerKB = *(*uint32)(unsafe.Pointer(curPtr))
	memUpperKB = *(*uint32)(unsafe.Pointer(curPtr + 4))
	return memLowerKB, memUpperKB
}

// CmdLine copies the NUL-terminated boot command line into dst and returns
// the number of bytes written. No allocation is performed so that this
// function remains safe to call before the kernel heap is initialized.
func CmdLine(dst []byte) int {
	return readCString(tagBootCmdLine, dst)
}

// BootLoaderName copies the NUL-terminated bootloader name into dst and
// returns the number of bytes written.
func BootLoaderName(dst []byte) int {
	return readCString(tagBootLoaderName, dst)
}

func readCString(t tagType, dst []byte) int {
	curPtr, size := findTagByType(t)
	if size == 0 {
		return 0
	}

	n := 0
	for uint32(n) < size && n < len(dst) {
		ch := *(*byte)(unsafe.Pointer(curPtr + uintptr(n)))
		if ch == 0 {
			break
		}
		dst[n] = ch
		n++
	}
	return n
}

// findTagByType scans the multiboot info data looking for the start of the
// specified tag. It returns a pointer to the tag contents (past the header)
// and the content length excluding the tag header.
//
// If the tag is not present, findTagByType returns (0, 0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned to 8-byte boundaries.
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}
