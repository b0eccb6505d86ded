package ps2

import (
	"io"

	"gravos/kernel"
	"gravos/kernel/kfmt"
)

// MouseButton is a bit set of pressed mouse buttons.
type MouseButton uint8

// The buttons reported in the first packet byte.
const (
	ButtonLeft MouseButton = 1 << iota
	ButtonRight
	ButtonMiddle
)

const (
	packetSize     = 3
	packetSyncBit  = uint8(0x08)
	packetButtons  = uint8(0x07)
	defaultScreenW = 800
	defaultScreenH = 600
)

var (
	errNoAck = &kernel.Error{Module: "ps2", Message: "mouse did not acknowledge command"}
)

// MouseEvent describes a decoded mouse packet.
type MouseEvent struct {
	// DX and DY hold the relative motion. DY grows downwards.
	DX, DY int

	// X and Y hold the pointer position clamped to the screen.
	X, Y int

	Buttons MouseButton
}

// Mouse decodes the 3-byte packets sent by a PS/2 mouse and tracks the
// pointer position.
type Mouse struct {
	cycle  uint8
	packet [packetSize]uint8

	x, y          int
	width, height int
}

// NewMouse returns a mouse driver whose pointer is confined to a screen of
// the given size and starts at its center. A zero size selects 800x600.
func NewMouse(width, height int) *Mouse {
	if width <= 0 || height <= 0 {
		width, height = defaultScreenW, defaultScreenH
	}

	return &Mouse{
		x:      width / 2,
		y:      height / 2,
		width:  width,
		height: height,
	}
}

// Position returns the pointer position.
func (m *Mouse) Position() (x, y int) {
	return m.x, m.y
}

// Feed processes a byte received from the mouse. When the byte completes a
// packet, Feed returns the decoded event and true. The first byte of a
// packet must have the sync bit set; bytes that fail the check are dropped.
func (m *Mouse) Feed(b uint8) (MouseEvent, bool) {
	switch m.cycle {
	case 0:
		if b&packetSyncBit == 0 {
			return MouseEvent{}, false
		}
		m.packet[0] = b
		m.cycle++
		return MouseEvent{}, false
	case 1:
		m.packet[1] = b
		m.cycle++
		return MouseEvent{}, false
	}

	m.packet[2] = b
	m.cycle = 0

	ev := MouseEvent{
		DX:      int(int8(m.packet[1])),
		DY:      -int(int8(m.packet[2])),
		Buttons: MouseButton(m.packet[0] & packetButtons),
	}

	m.x = clamp(m.x+ev.DX, m.width-1)
	m.y = clamp(m.y+ev.DY, m.height-1)
	ev.X, ev.Y = m.x, m.y

	return ev, true
}

// HandleInterrupt reads the pending byte from the controller if it came from
// the mouse and feeds it to the packet decoder.
func (m *Mouse) HandleInterrupt() (MouseEvent, bool) {
	if portReadByteFn(StatusPort)&StatusAuxData == 0 {
		return MouseEvent{}, false
	}

	return m.Feed(portReadByteFn(DataPort))
}

func clamp(v, max int) int {
	switch {
	case v < 0:
		return 0
	case v > max:
		return max
	default:
		return v
	}
}

// DriverName returns the name of this driver.
func (m *Mouse) DriverName() string {
	return "ps2_mouse"
}

// DriverVersion returns the version of this driver.
func (m *Mouse) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit enables the auxiliary port, routes its interrupts to IRQ12,
// restores the mouse defaults and turns on packet streaming.
func (m *Mouse) DriverInit(w io.Writer) *kernel.Error {
	Command(CmdEnableAux)

	Command(CmdReadConfig)
	config := ReadData()
	config |= ConfigAuxIRQ
	config &^= ConfigAuxClockOff
	Command(CmdWriteConfig)
	WriteData(config)

	for _, cmd := range []uint8{MouseSetDefaults, MouseEnableStreaming} {
		writeMouse(cmd)
		if ReadData() != Ack {
			return errNoAck
		}
	}

	kfmt.Fprintf(w, "streaming enabled; config byte 0x%2x\n", config)
	return nil
}

// writeMouse forwards val to the mouse through the controller.
func writeMouse(val uint8) {
	Command(CmdWriteAux)
	WriteData(val)
}
