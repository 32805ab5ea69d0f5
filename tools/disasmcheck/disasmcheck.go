// Command disasmcheck disassembles the linked kernel ELF's .text section and
// fails if any byte range does not decode as a valid x86-64 instruction,
// catching a mis-assembled ISR stub or corrupted section before boot is
// attempted under QEMU.
package main

import (
	"debug/elf"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/arch/x86/x86asm"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[disasmcheck] error: %s\n", err.Error())
	os.Exit(1)
}

// checkText walks code one decoded instruction at a time and reports the
// first offset where decoding fails.
func checkText(code []byte, base uint64) error {
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return fmt.Errorf("undecodable instruction at %#x: %s", base+uint64(off), err)
		}
		if inst.Len == 0 {
			return fmt.Errorf("zero-length decode at %#x", base+uint64(off))
		}
		off += inst.Len
	}

	return nil
}

func run(imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	text := f.Section(".text")
	if text == nil {
		return errors.New(".text section not found")
	}

	code, err := text.Data()
	if err != nil {
		return err
	}

	return checkText(code, text.Addr)
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "disasmcheck: verify every byte of a kernel ELF's .text section decodes\n\n")
		fmt.Fprint(os.Stderr, "Usage: disasmcheck kernel.elf\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		exit(errors.New("missing kernel image argument"))
	}

	if err := run(flag.Arg(0)); err != nil {
		exit(err)
	}
}
