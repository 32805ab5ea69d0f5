// Package serial drives the COM1 UART at port 0x3F8 for boot-time and
// panic-time logging, independent of whatever video console is active.
package serial

import "github.com/lmarrow/nyxkernel/kernel/cpu"

const com1 = 0x3F8

const (
	dataReg    = com1 + 0
	intEnable  = com1 + 1
	fifoCtrl   = com1 + 2
	lineCtrl   = com1 + 3
	modemCtrl  = com1 + 4
	lineStatus = com1 + 5
)

const (
	// baudDivisorLo/Hi configure 38400 baud against the UART's 115200 base
	// clock (divisor 3).
	baudDivisorLo = 0x03
	baudDivisorHi = 0x00

	lineCtrlDLAB   = 0x80 // set to program the baud divisor
	lineCtrl8N1    = 0x03 // 8 data bits, no parity, 1 stop bit
	fifoEnableByte = 0xC7 // enable FIFO, clear rx/tx, 14-byte threshold
	modemCtrlByte  = 0x0B // DTR/RTS set, OUT2 (IRQ line) enabled

	txEmpty = 0x20 // line status bit: transmitter holding register empty
)

var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
)

// Init configures COM1 for 38400 baud, 8N1, with the FIFO enabled.
func Init() {
	outbFn(intEnable, 0x00)

	outbFn(lineCtrl, lineCtrlDLAB)
	outbFn(dataReg, baudDivisorLo)
	outbFn(intEnable, baudDivisorHi)

	outbFn(lineCtrl, lineCtrl8N1)
	outbFn(fifoCtrl, fifoEnableByte)
	outbFn(modemCtrl, modemCtrlByte)
}

func transmitEmpty() bool {
	return inbFn(lineStatus)&txEmpty != 0
}

// WriteByte blocks until the transmit holding register is empty, then sends
// a single byte.
func WriteByte(b byte) {
	for !transmitEmpty() {
	}
	outbFn(dataReg, b)
}

// WriteString sends every byte of s in order.
func WriteString(s string) {
	for i := 0; i < len(s); i++ {
		WriteByte(s[i])
	}
}
