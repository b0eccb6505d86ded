package irq

import (
	"gravos/kernel/cpu"
	"gravos/kernel/gate"
)

// 8259 controller ports.
const (
	masterCommand = uint16(0x20)
	masterData    = uint16(0x21)
	slaveCommand  = uint16(0xa0)
	slaveData     = uint16(0xa1)
)

const (
	icw1Init     = uint8(0x11) // edge triggered, cascade, ICW4 follows
	icw3Master   = uint8(0x04) // slave on line 2
	icw3Slave    = uint8(0x02) // cascade identity
	icw4Mode8086 = uint8(0x01)
	cmdEOI       = uint8(0x20)

	// Unmasked lines: timer, keyboard and cascade on the master; mouse
	// on the slave.
	masterMask = uint8(0xf8)
	slaveMask  = uint8(0xef)
)

var (
	portReadByteFn  = cpu.PortReadByte
	portWriteByteFn = cpu.PortWriteByte
)

// PIC programs the master/slave 8259 interrupt controller pair.
type PIC struct {
	remapped bool
}

// Remap moves the hardware interrupt vectors to 0x20-0x2f so that they do
// not collide with the processor exceptions and masks every line except the
// timer, the keyboard, the cascade and the mouse.
func (p *PIC) Remap() {
	portWriteByteFn(masterCommand, icw1Init)
	portWriteByteFn(slaveCommand, icw1Init)

	portWriteByteFn(masterData, uint8(gate.IRQBase))
	portWriteByteFn(slaveData, uint8(gate.IRQSlaveBase))

	portWriteByteFn(masterData, icw3Master)
	portWriteByteFn(slaveData, icw3Slave)

	portWriteByteFn(masterData, icw4Mode8086)
	portWriteByteFn(slaveData, icw4Mode8086)

	portWriteByteFn(masterData, masterMask)
	portWriteByteFn(slaveData, slaveMask)

	p.remapped = true
}

// Remapped returns true once Remap has been invoked.
func (p *PIC) Remapped() bool {
	return p.remapped
}

// Acknowledge signals the end of interrupt num to the controllers. Lines
// served by the slave need an EOI on both controllers.
func (p *PIC) Acknowledge(num gate.InterruptNumber) {
	if !num.IsIRQ() {
		return
	}

	portWriteByteFn(masterCommand, cmdEOI)
	if num >= gate.IRQSlaveBase {
		portWriteByteFn(slaveCommand, cmdEOI)
	}
}
