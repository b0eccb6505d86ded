package cpu

import "gravos/kernel/sync"

// PortDevice is implemented by hardware attached to the I/O port bus.
type PortDevice interface {
	// ReadPort returns the byte presented by the device at port.
	ReadPort(port uint16) uint8

	// WritePort delivers a byte written to port.
	WritePort(port uint16, val uint8)
}

// WordPortDevice is implemented by devices with 16-bit wide ports such as
// the ATA data register.
type WordPortDevice interface {
	PortDevice

	// ReadPortWord returns the word presented by the device at port.
	ReadPortWord(port uint16) uint16

	// WritePortWord delivers a word written to port.
	WritePortWord(port uint16, val uint16)
}

const (
	// floatingBus is the value read from ports with no device attached.
	floatingBus = 0xff

	// floatingBusWord is the word read from ports with no device attached.
	floatingBusWord = 0xffff
)

var (
	portLock sync.Spinlock
	ports    = make(map[uint16]PortDevice)
)

// AttachPortDevice connects dev to the given I/O ports. Attaching a device to
// a port that is already in use replaces the previous device.
func AttachPortDevice(dev PortDevice, portList ...uint16) {
	portLock.Acquire()
	for _, port := range portList {
		ports[port] = dev
	}
	portLock.Release()
}

// DetachPortDevices disconnects all devices from the I/O port bus.
func DetachPortDevices() {
	portLock.Acquire()
	ports = make(map[uint16]PortDevice)
	portLock.Release()
}

func deviceAt(port uint16) PortDevice {
	portLock.Acquire()
	defer portLock.Release()
	return ports[port]
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8) {
	if dev := deviceAt(port); dev != nil {
		dev.WritePort(port, val)
	}
}

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8 {
	if dev := deviceAt(port); dev != nil {
		return dev.ReadPort(port)
	}
	return floatingBus
}

// PortWriteWord writes a uint16 value to the requested port as a single
// transfer. Devices with 8-bit ports only latch the low byte.
func PortWriteWord(port uint16, val uint16) {
	switch dev := deviceAt(port).(type) {
	case nil:
	case WordPortDevice:
		dev.WritePortWord(port, val)
	default:
		dev.WritePort(port, uint8(val))
	}
}

// PortReadWord reads a uint16 value from the requested port as a single
// transfer. Devices with 8-bit ports only drive the low byte; the high byte
// floats.
func PortReadWord(port uint16) uint16 {
	switch dev := deviceAt(port).(type) {
	case nil:
		return floatingBusWord
	case WordPortDevice:
		return dev.ReadPortWord(port)
	default:
		return floatingBusWord&^0xff | uint16(dev.ReadPort(port))
	}
}
