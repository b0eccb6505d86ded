package machine

import (
	"gravos/kernel/gate"
	"gravos/kernel/sync"
)

const (
	picMasterCommand = uint16(0x20)
	picMasterData    = uint16(0x21)
	picSlaveCommand  = uint16(0xa0)
	picSlaveData     = uint16(0xa1)

	picICW1Init = uint8(0x10)
	picOCWEOI   = uint8(0x20)

	cascadeLine = 2
)

// i8259 models a single 8259 interrupt controller.
type i8259 struct {
	vectorBase uint8
	mask       uint8
	irr        uint8 // requested
	isr        uint8 // in service

	// icwStep is the next initialization word expected on the data port; 0
	// means the controller is initialized and data writes update the mask.
	icwStep     int
	initialized bool
}

func (c *i8259) writeCommand(val uint8) {
	switch {
	case val&picICW1Init != 0:
		c.icwStep = 2
		c.mask = 0
		c.irr, c.isr = 0, 0
	case val&picOCWEOI != 0:
		// Non-specific EOI clears the highest priority line in service.
		for line := uint8(0); line < 8; line++ {
			if c.isr&(1<<line) != 0 {
				c.isr &^= 1 << line
				break
			}
		}
	}
}

func (c *i8259) writeData(val uint8) {
	switch c.icwStep {
	case 2:
		c.vectorBase = val &^ 7
		c.icwStep = 3
	case 3:
		c.icwStep = 4
	case 4:
		c.icwStep = 0
		c.initialized = true
	default:
		c.mask = val
	}
}

// highest returns the highest priority line that is requested, unmasked and
// not blocked by a line of equal or higher priority in service.
func (c *i8259) highest() (uint8, bool) {
	if !c.initialized {
		return 0, false
	}

	for line := uint8(0); line < 8; line++ {
		bit := uint8(1) << line
		if c.isr&bit != 0 {
			return 0, false
		}
		if c.irr&bit != 0 && c.mask&bit == 0 {
			return line, true
		}
	}
	return 0, false
}

// PIC models the cascaded master/slave 8259 pair wired the way the PC/AT
// does it: the slave drives line 2 of the master.
type PIC struct {
	lock          sync.Spinlock
	master, slave i8259
}

// ReadPort implements cpu.PortDevice.
func (p *PIC) ReadPort(port uint16) uint8 {
	p.lock.Acquire()
	defer p.lock.Release()

	switch port {
	case picMasterData:
		return p.master.mask
	case picSlaveData:
		return p.slave.mask
	}
	return p.master.irr
}

// WritePort implements cpu.PortDevice.
func (p *PIC) WritePort(port uint16, val uint8) {
	p.lock.Acquire()
	defer p.lock.Release()

	switch port {
	case picMasterCommand:
		p.master.writeCommand(val)
	case picMasterData:
		p.master.writeData(val)
	case picSlaveCommand:
		p.slave.writeCommand(val)
	case picSlaveData:
		p.slave.writeData(val)
	}
}

// Raise asserts the interrupt request line irq (0-15).
func (p *PIC) Raise(irq int) {
	p.lock.Acquire()
	defer p.lock.Release()

	if irq >= 8 {
		p.slave.irr |= 1 << uint(irq-8)
		p.master.irr |= 1 << cascadeLine
		return
	}
	p.master.irr |= 1 << uint(irq)
}

// Pending returns the vector of the highest priority interrupt that the
// controllers would present to the processor.
func (p *PIC) Pending() (gate.InterruptNumber, bool) {
	p.lock.Acquire()
	defer p.lock.Release()

	line, ok := p.master.highest()
	if !ok {
		return 0, false
	}

	if line == cascadeLine {
		slaveLine, ok := p.slave.highest()
		if !ok {
			return 0, false
		}
		return gate.InterruptNumber(p.slave.vectorBase + slaveLine), true
	}

	return gate.InterruptNumber(p.master.vectorBase + line), true
}

// Acknowledge performs the interrupt acknowledge cycle for the pending
// interrupt: the request moves to the in-service register until the
// handler issues an EOI.
func (p *PIC) Acknowledge() {
	p.lock.Acquire()
	defer p.lock.Release()

	line, ok := p.master.highest()
	if !ok {
		return
	}

	p.master.irr &^= 1 << line
	p.master.isr |= 1 << line

	if line != cascadeLine {
		return
	}

	if slaveLine, ok := p.slave.highest(); ok {
		p.slave.irr &^= 1 << slaveLine
		p.slave.isr |= 1 << slaveLine
	}

	// Keep the cascade requested while the slave has more work.
	if p.slave.irr&^p.slave.mask != 0 {
		p.master.irr |= 1 << cascadeLine
	}
}

// InService returns the in-service registers of the master and the slave.
func (p *PIC) InService() (master, slave uint8) {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.master.isr, p.slave.isr
}
