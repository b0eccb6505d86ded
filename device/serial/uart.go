// Package serial drives 16550-compatible UARTs. The kernel uses COM1 as an
// additional log sink.
package serial

import (
	"io"

	"gravos/device"
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/kfmt"
	"gravos/multiboot"
)

// COM1 is the base I/O port of the first serial port.
const COM1 = uint16(0x3f8)

// Register offsets from the base port.
const (
	regData         = 0 // THR/RBR, divisor low byte when DLAB is set
	regIntEnable    = 1 // IER, divisor high byte when DLAB is set
	regFIFOControl  = 2
	regLineControl  = 3
	regModemControl = 4
	regLineStatus   = 5
	regScratch      = 7
)

const (
	lineControlDLAB = uint8(0x80)
	lineControl8N1  = uint8(0x03)
	fifoEnable14    = uint8(0xc7)
	modemIRQRTSDSR  = uint8(0x0b)

	lineStatusTHREmpty = uint8(0x20)

	// divisor38400 selects 38400 baud.
	divisor38400 = uint16(3)

	scratchProbe = uint8(0xae)

	// txAttempts bounds the wait for the transmit holding register.
	txAttempts = 10000
)

var (
	portReadByteFn   = cpu.PortReadByte
	portWriteByteFn  = cpu.PortWriteByte
	getBootCmdLineFn = multiboot.GetBootCmdLine
)

// UART is an output-only driver for a 16550 serial port.
type UART struct {
	base uint16
}

// NewUART returns a driver for the UART at the given base port.
func NewUART(base uint16) *UART {
	return &UART{base: base}
}

// Write implements io.Writer. Line feeds are expanded to CR LF.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			u.transmit('\r')
		}
		u.transmit(b)
	}
	return len(p), nil
}

func (u *UART) transmit(b byte) {
	for i := 0; i < txAttempts; i++ {
		if portReadByteFn(u.base+regLineStatus)&lineStatusTHREmpty != 0 {
			break
		}
	}
	portWriteByteFn(u.base+regData, b)
}

// DriverName returns the name of this driver.
func (u *UART) DriverName() string {
	return "uart16550"
}

// DriverVersion returns the version of this driver.
func (u *UART) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit programs the port for 38400 baud 8N1 with FIFOs enabled.
func (u *UART) DriverInit(w io.Writer) *kernel.Error {
	portWriteByteFn(u.base+regIntEnable, 0x00)
	portWriteByteFn(u.base+regLineControl, lineControlDLAB)
	portWriteByteFn(u.base+regData, uint8(divisor38400))
	portWriteByteFn(u.base+regIntEnable, uint8(divisor38400>>8))
	portWriteByteFn(u.base+regLineControl, lineControl8N1)
	portWriteByteFn(u.base+regFIFOControl, fifoEnable14)
	portWriteByteFn(u.base+regModemControl, modemIRQRTSDSR)

	kfmt.Fprintf(w, "port 0x%x at 38400 baud\n", u.base)
	return nil
}

// probeForCOM1 checks for a UART at COM1 by round-tripping a value through
// its scratch register. Passing serial=off on the boot command line skips
// the port.
func probeForCOM1() device.Driver {
	if getBootCmdLineFn()["serial"] == "off" {
		return nil
	}

	portWriteByteFn(COM1+regScratch, scratchProbe)
	if portReadByteFn(COM1+regScratch) != scratchProbe {
		return nil
	}

	return NewUART(COM1)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForCOM1,
	})
}
