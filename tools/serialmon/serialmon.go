// Command serialmon puts a host PTY connected to QEMU's -serial option into
// raw termios mode and copies bytes between it and stdio, so the kernel's
// COM1 log lines round-trip without local echo or line-buffering getting in
// the way.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[serialmon] error: %s\n", err.Error())
	os.Exit(1)
}

// rawMode clears the termios flags that would otherwise buffer by line, echo
// keystrokes back, or translate CR/LF, and returns a func that restores the
// fd's original state.
func rawMode(fd int) (restore func() error, err error) {
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *orig
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}

	return func() error { return unix.IoctlSetTermios(fd, unix.TCSETS, orig) }, nil
}

func run(ptyPath string) error {
	pty, err := os.OpenFile(ptyPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer pty.Close()

	restore, err := rawMode(int(pty.Fd()))
	if err != nil {
		return err
	}
	defer restore()

	errCh := make(chan error, 2)
	go func() { _, err := io.Copy(os.Stdout, pty); errCh <- err }()
	go func() { _, err := io.Copy(pty, os.Stdin); errCh <- err }()

	return <-errCh
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "serialmon: bridge a raw-mode PTY to stdio\n\n")
		fmt.Fprint(os.Stderr, "Usage: serialmon /dev/pts/N\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		exit(errors.New("missing pty path argument"))
	}

	if err := run(flag.Arg(0)); err != nil {
		exit(err)
	}
}
