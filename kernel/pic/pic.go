// Package pic drives the two chained 8259 programmable interrupt
// controllers, remapping hardware IRQ0-15 onto the IDT vectors the gate
// package installs for them and acknowledging interrupts once serviced.
package pic

import (
	"github.com/lmarrow/nyxkernel/kernel/cpu"
	"github.com/lmarrow/nyxkernel/kernel/irq"
)

const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xA0
	slaveDataPort     = 0xA1

	cmdInit            = 0x11
	cmdEndOfInterrupt  = 0x20
	mode8086           = 0x01
	masterSlaveIRQLine = 2 // IRQ2 on the master carries the slave's cascade
)

// controller is one of the two chained 8259 PICs.
type controller struct {
	offset      uint8
	commandPort uint16
	dataPort    uint16
}

func (c controller) readMask() uint8 {
	return inbFn(c.dataPort)
}

func (c controller) writeMask(mask uint8) {
	outbFn(c.dataPort, mask)
}

func (c controller) endOfInterrupt() {
	outbFn(c.commandPort, cmdEndOfInterrupt)
}

var (
	master, slave controller

	// outbFn/inbFn indirect through cpu's port-I/O primitives so tests can
	// run without real hardware.
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
)

// wait gives the PIC time to process a command on older hardware that can't
// keep up with back-to-back I/O writes, by writing throwaway data to an
// unused debug port.
func wait() {
	outbFn(0x80, 0)
}

// Init remaps IRQ0-15 to vectors base..base+15 (spec.md §4.H calls for base
// 32, past the CPU exception range), masking every line except the cascade
// IRQ2 the slave PIC rides on, and registers the ack callback kernel/irq
// invokes after every handled IRQ.
func Init(base uint8) {
	master = controller{offset: base, commandPort: masterCommandPort, dataPort: masterDataPort}
	slave = controller{offset: base + 8, commandPort: slaveCommandPort, dataPort: slaveDataPort}

	outbFn(master.commandPort, cmdInit)
	wait()
	outbFn(slave.commandPort, cmdInit)
	wait()

	outbFn(master.dataPort, master.offset)
	wait()
	outbFn(slave.dataPort, slave.offset)
	wait()

	outbFn(master.dataPort, 1<<masterSlaveIRQLine)
	wait()
	outbFn(slave.dataPort, masterSlaveIRQLine+1)
	wait()

	outbFn(master.dataPort, mode8086)
	wait()
	outbFn(slave.dataPort, mode8086)
	wait()

	master.writeMask(0xff &^ (1 << masterSlaveIRQLine))
	wait()
	slave.writeMask(0xff)

	irq.SetIRQAck(EndOfInterrupt)
}

// Mask disables the given hardware IRQ line (0-15).
func Mask(line uint8) {
	c := controllerFor(line)
	c.writeMask(c.readMask() | (1 << (line % 8)))
}

// Unmask enables the given hardware IRQ line (0-15).
func Unmask(line uint8) {
	c := controllerFor(line)
	c.writeMask(c.readMask() &^ (1 << (line % 8)))
}

// EndOfInterrupt notifies the controller(s) servicing line that interrupt
// handling is complete. The slave must also be acknowledged whenever it
// raised the interrupt, since its cascade runs through the master's IRQ2.
func EndOfInterrupt(line uint8) {
	if line >= 8 {
		slave.endOfInterrupt()
	}
	master.endOfInterrupt()
}

func controllerFor(line uint8) controller {
	if line >= 8 {
		return slave
	}
	return master
}
