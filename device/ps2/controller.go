// Package ps2 drives the 8042 PS/2 controller and the keyboard and mouse
// attached to it.
package ps2

import "gravos/kernel/cpu"

// Controller ports.
const (
	DataPort    = uint16(0x60)
	StatusPort  = uint16(0x64)
	CommandPort = uint16(0x64)
)

// Status register bits.
const (
	StatusOutputFull = uint8(1 << 0)
	StatusInputFull  = uint8(1 << 1)
	StatusAuxData    = uint8(1 << 5)
)

// Controller commands written to CommandPort.
const (
	CmdReadConfig  = uint8(0x20)
	CmdWriteConfig = uint8(0x60)
	CmdEnableAux   = uint8(0xa8)
	CmdWriteAux    = uint8(0xd4)
	CmdPulseReset  = uint8(0xfe)
)

// Configuration byte bits.
const (
	ConfigAuxIRQ      = uint8(1 << 1)
	ConfigAuxClockOff = uint8(1 << 5)
)

// Device commands and responses.
const (
	MouseSetDefaults     = uint8(0xf6)
	MouseEnableStreaming = uint8(0xf4)
	Ack                  = uint8(0xfa)
)

var (
	portReadByteFn  = cpu.PortReadByte
	portWriteByteFn = cpu.PortWriteByte
	pauseFn         = cpu.Pause

	// waitAttempts bounds the number of status polls performed while
	// waiting for the controller.
	waitAttempts = 100000
)

// WaitWrite polls the controller until its input buffer is empty and a byte
// can be written. It returns false if the controller did not become ready.
func WaitWrite() bool {
	for i := 0; i < waitAttempts; i++ {
		if portReadByteFn(StatusPort)&StatusInputFull == 0 {
			return true
		}
	}
	return false
}

// WaitRead polls the controller until its output buffer holds a byte. It
// returns false if no byte arrived.
func WaitRead() bool {
	for i := 0; i < waitAttempts; i++ {
		if portReadByteFn(StatusPort)&StatusOutputFull != 0 {
			return true
		}
	}
	return false
}

// Command writes cmd to the controller command port.
func Command(cmd uint8) {
	WaitWrite()
	portWriteByteFn(CommandPort, cmd)
}

// WriteData writes val to the controller data port.
func WriteData(val uint8) {
	WaitWrite()
	portWriteByteFn(DataPort, val)
}

// ReadData reads a byte from the controller data port.
func ReadData() uint8 {
	WaitRead()
	return portReadByteFn(DataPort)
}

// Reset pulses the processor reset line through the controller. The input
// buffer must drain before the controller accepts the command, so this
// function spins until it does.
func Reset() {
	for portReadByteFn(StatusPort)&StatusInputFull != 0 {
		pauseFn()
	}
	portWriteByteFn(CommandPort, CmdPulseReset)
}
