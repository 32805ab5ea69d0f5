package console

import (
	"reflect"
	"unsafe"
)

// Framebuffer is a linear 32-bit-per-pixel pixel view used by the DRAW
// syscall (spec.md §4.I, syscall 7), distinct from the character-cell Ega
// console: it owns a whole screen's raw ARGB pixels rather than glyph
// cells, generalized from the teacher's VesaFbConsole per SPEC_FULL.md
// §5.O's graphics-mode supplement.
type Framebuffer struct {
	width  uint32
	height uint32
	pitch  uint32 // bytes per scanline; may exceed width*4 if the mode pads rows
	pixels []uint32
}

// Init maps the framebuffer over the already-mapped virtual address
// fbVirtAddr (vmm.MapRegion is the caller's responsibility, mirroring how
// Ega.Init takes an address rather than doing its own mapping).
func (fb *Framebuffer) Init(width, height, pitch uint32, fbVirtAddr uintptr) {
	fb.width = width
	fb.height = height
	fb.pitch = pitch

	pixelCount := int(pitch/4) * int(height)
	fb.pixels = *(*[]uint32)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  pixelCount,
		Cap:  pixelCount,
		Data: fbVirtAddr,
	}))
}

// Width returns the framebuffer width in pixels.
func (fb *Framebuffer) Width() uint32 { return fb.width }

// Height returns the framebuffer height in pixels.
func (fb *Framebuffer) Height() uint32 { return fb.height }

// Draw copies a width×height block of packed ARGB pixels from src into the
// framebuffer's top-left corner, clipping to the framebuffer's own
// dimensions if src is larger. src is laid out row-major with no padding,
// matching the DRAW syscall's argument (spec.md §4.I).
func (fb *Framebuffer) Draw(src []uint32, width, height uint32) {
	copyWidth, copyHeight := width, height
	if copyWidth > fb.width {
		copyWidth = fb.width
	}
	if copyHeight > fb.height {
		copyHeight = fb.height
	}

	dstStride := fb.pitch / 4
	for y := uint32(0); y < copyHeight; y++ {
		srcRow := src[y*width : y*width+copyWidth]
		dstRow := fb.pixels[y*dstStride : y*dstStride+copyWidth]
		copy(dstRow, srcRow)
	}
}
