package tty

import (
	"io"

	"gravos/device"
	"gravos/device/video/console"
	"gravos/kernel"
)

// cell is a character together with its colors.
type cell struct {
	ch     byte
	fg, bg uint8
}

// VT implements a terminal that keeps a shadow copy of the console contents
// so that it can be redrawn when it becomes active. The terminal interprets
// the following special characters:
//   - \r (carriage-return)
//   - \n (line-feed; also returns the cursor to the first column)
//   - \b (backspace; erases the previous character)
//   - \t (tab; advances to the next tab stop)
type VT struct {
	cons console.Device

	width, height uint32
	cells         []cell

	tabWidth  uint32
	defaultFg uint8
	defaultBg uint8
	cursorX   uint32
	cursorY   uint32
	state     State
}

// NewVT creates a new virtual terminal device with tab stops every tabWidth
// columns.
func NewVT(tabWidth uint8) *VT {
	if tabWidth == 0 {
		tabWidth = DefaultTabWidth
	}

	return &VT{
		tabWidth: uint32(tabWidth),
		cursorX:  1,
		cursorY:  1,
	}
}

// AttachTo connects a TTY to a console instance.
func (t *VT) AttachTo(cons console.Device) {
	if cons == nil {
		return
	}

	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.defaultFg, t.defaultBg = cons.DefaultColors()
	t.cursorX, t.cursorY = 1, 1

	t.cells = make([]cell, t.width*t.height)
	t.clearCells(t.cells)
}

// State returns the TTY's state.
func (t *VT) State() State {
	return t.state
}

// SetState updates the TTY's state. Activating the terminal redraws the
// console with the terminal contents.
func (t *VT) SetState(newState State) {
	if t.state == newState {
		return
	}

	t.state = newState
	if t.state != StateActive || t.cons == nil {
		return
	}

	for y := uint32(1); y <= t.height; y++ {
		for x := uint32(1); x <= t.width; x++ {
			c := t.cells[t.index(x, y)]
			t.cons.Write(c.ch, c.fg, c.bg, x, y)
		}
	}
}

// CursorPosition returns the current cursor position.
func (t *VT) CursorPosition() (uint32, uint32) {
	return t.cursorX, t.cursorY
}

// SetCursorPosition sets the current cursor position to (x,y).
func (t *VT) SetCursorPosition(x, y uint32) {
	if t.cons == nil {
		return
	}

	t.cursorX = clip(x, t.width)
	t.cursorY = clip(y, t.height)
}

// Write implements io.Writer.
func (t *VT) Write(data []byte) (int, error) {
	for count, b := range data {
		if err := t.WriteByte(b); err != nil {
			return count, err
		}
	}

	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *VT) WriteByte(b byte) error {
	if t.cons == nil {
		return io.ErrClosedPipe
	}

	switch b {
	case '\r':
		t.cursorX = 1
	case '\n':
		t.lineFeed()
	case '\b':
		if t.cursorX > 1 {
			t.cursorX--
			t.put(' ')
		}
	case '\t':
		next := ((t.cursorX-1)/t.tabWidth+1)*t.tabWidth + 1
		for t.cursorX < next && t.cursorX <= t.width {
			t.put(' ')
			t.cursorX++
		}
		if t.cursorX > t.width {
			t.lineFeed()
		}
	default:
		t.put(b)
		t.cursorX++
		if t.cursorX > t.width {
			t.lineFeed()
		}
	}

	return nil
}

// put stores b at the cursor position without moving the cursor.
func (t *VT) put(b byte) {
	c := cell{ch: b, fg: t.defaultFg, bg: t.defaultBg}
	t.cells[t.index(t.cursorX, t.cursorY)] = c

	if t.state == StateActive {
		t.cons.Write(c.ch, c.fg, c.bg, t.cursorX, t.cursorY)
	}
}

// lineFeed moves the cursor to the start of the next line, scrolling the
// contents up when the cursor is on the last line.
func (t *VT) lineFeed() {
	t.cursorX = 1
	if t.cursorY < t.height {
		t.cursorY++
		return
	}

	copy(t.cells, t.cells[t.width:])
	t.clearCells(t.cells[(t.height-1)*t.width:])

	if t.state == StateActive {
		t.cons.Scroll(console.ScrollDirUp, 1)
		t.cons.Fill(1, t.height, t.width, 1, t.defaultFg, t.defaultBg)
	}
}

func (t *VT) clearCells(cells []cell) {
	for i := range cells {
		cells[i] = cell{ch: ' ', fg: t.defaultFg, bg: t.defaultBg}
	}
}

func (t *VT) index(x, y uint32) uint32 {
	return (y-1)*t.width + (x - 1)
}

func clip(v, max uint32) uint32 {
	switch {
	case v < 1:
		return 1
	case v > max:
		return max
	default:
		return v
	}
}

// DriverName returns the name of this driver.
func (t *VT) DriverName() string {
	return "vt"
}

// DriverVersion returns the version of this driver.
func (t *VT) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit initializes this driver.
func (t *VT) DriverInit(_ io.Writer) *kernel.Error { return nil }

func probeForVT() device.Driver {
	return NewVT(DefaultTabWidth)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderConsole + 1,
		Probe: probeForVT,
	})
}
