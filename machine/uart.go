package machine

import (
	"io"

	"gravos/kernel/sync"
)

const (
	uartPortCount = 8

	uartRegData        = 0
	uartRegLineControl = 3
	uartRegLineStatus  = 5
	uartRegScratch     = 7

	uartLCRDLAB = uint8(0x80)

	// Transmitter idle and holding register empty.
	uartLSRIdle = uint8(0x60)
)

// UART models the transmit side of a 16550 serial port. Bytes written by the
// guest are forwarded to an io.Writer on the host.
type UART struct {
	lock sync.Spinlock
	base uint16
	out  io.Writer

	regs [uartPortCount]uint8
}

// NewUART returns a serial port at base that writes its output to out.
func NewUART(base uint16, out io.Writer) *UART {
	return &UART{base: base, out: out}
}

// Ports returns the I/O ports decoded by the UART.
func (u *UART) Ports() []uint16 {
	ports := make([]uint16, uartPortCount)
	for i := range ports {
		ports[i] = u.base + uint16(i)
	}
	return ports
}

// ReadPort implements cpu.PortDevice.
func (u *UART) ReadPort(port uint16) uint8 {
	u.lock.Acquire()
	defer u.lock.Release()

	switch reg := port - u.base; reg {
	case uartRegLineStatus:
		return uartLSRIdle
	case uartRegData:
		// Nothing is ever received.
		return 0
	default:
		return u.regs[reg]
	}
}

// WritePort implements cpu.PortDevice.
func (u *UART) WritePort(port uint16, val uint8) {
	u.lock.Acquire()
	reg := port - u.base
	transmit := reg == uartRegData && u.regs[uartRegLineControl]&uartLCRDLAB == 0
	if !transmit {
		u.regs[reg] = val
	}
	u.lock.Release()

	if transmit && u.out != nil {
		u.out.Write([]byte{val})
	}
}

// Scratch returns the scratch register.
func (u *UART) Scratch() uint8 {
	u.lock.Acquire()
	defer u.lock.Release()
	return u.regs[uartRegScratch]
}
