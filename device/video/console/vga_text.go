package console

import (
	"io"

	"gravos/kernel"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
)

// Well-known VGA text mode parameters.
const (
	// TextBufferAddr is the physical address of the mode 0x3 framebuffer.
	TextBufferAddr = uintptr(0xb8000)

	// TextColumns and TextRows are the dimensions of mode 0x3.
	TextColumns = 80
	TextRows    = 25
)

// The 16 EGA color indices.
const (
	ColorBlack     = uint8(0)
	ColorBlue      = uint8(1)
	ColorRed       = uint8(4)
	ColorLightGray = uint8(7)
	ColorWhite     = uint8(15)
)

// VgaTextConsole implements an EGA-compatible text console using VGA mode
// 0x3 with the 16 EGA colors.
//
// Each character in the console framebuffer is represented using two bytes,
// a byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
//
// The default settings for the console are:
//   - light gray text (color 7) on black background (color 0).
//   - space as the clear character
type VgaTextConsole struct {
	width  uint32
	height uint32

	fbPhysAddr uintptr

	defaultFg uint8
	defaultBg uint8
	clearChar uint16
}

// NewVgaTextConsole creates an new vga text console with its
// framebuffer located at fbPhysAddr.
func NewVgaTextConsole(columns, rows uint32, fbPhysAddr uintptr) *VgaTextConsole {
	return &VgaTextConsole{
		width:      columns,
		height:     rows,
		fbPhysAddr: fbPhysAddr,
		clearChar:  uint16(' '),
		// light gray text on black background
		defaultFg: ColorLightGray,
		defaultBg: ColorBlack,
	}
}

// Dimensions returns the number of columns and rows.
func (cons *VgaTextConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

// Fill sets the contents of the specified rectangular region to the requested
// color. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	var (
		clr                  = uint16(Attr(fg, bg))<<8 | cons.clearChar
		rowOffset, colOffset uint32
	)

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x >= cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y >= cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	rowOffset = ((y - 1) * cons.width) + (x - 1)
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.writeCell(colOffset, clr)
		}
	}
}

// Scroll the console contents to the specified direction. The caller
// is responsible for updating (e.g. clear or replace) the contents of
// the region that was scrolled.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, lines uint32) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := lines * cons.width
	moveSize := mem.Size((cons.height - lines) * cons.width * 2)

	switch dir {
	case ScrollDirUp:
		mem.Memcopy(cons.cellAddr(offset), cons.cellAddr(0), moveSize)
	case ScrollDirDown:
		mem.Memcopy(cons.cellAddr(0), cons.cellAddr(offset), moveSize)
	}
}

// Write a char to the specified location. If fg or bg exceed the supported
// colors for this console, they will be set to their default value. Both x and
// y coordinates are 1-based
func (cons *VgaTextConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	if fg >= colorCount {
		fg = cons.defaultFg
	}
	if bg >= colorCount {
		bg = cons.defaultBg
	}

	cons.writeCell(((y-1)*cons.width)+(x-1), uint16(Attr(fg, bg))<<8|uint16(ch))
}

// WriteString writes s starting at (x, y) without interpreting control
// characters. Characters past the end of the row are dropped.
func (cons *VgaTextConsole) WriteString(s string, fg, bg uint8, x, y uint32) {
	for i := 0; i < len(s); i++ {
		cons.Write(s[i], fg, bg, x+uint32(i), y)
	}
}

// Char returns the character and attribute byte stored at (x, y).
func (cons *VgaTextConsole) Char(x, y uint32) (ch byte, attr uint8) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return 0, 0
	}

	cell := mem.ReadUint16(cons.cellAddr(((y - 1) * cons.width) + (x - 1)))
	return byte(cell), uint8(cell >> 8)
}

func (cons *VgaTextConsole) cellAddr(index uint32) uintptr {
	return cons.fbPhysAddr + uintptr(index)*2
}

func (cons *VgaTextConsole) writeCell(index uint32, val uint16) {
	mem.WriteUint16(cons.cellAddr(index), val)
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit clears the console. The framebuffer lies inside the identity
// mapped region so no mapping is needed.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	cons.Fill(1, 1, cons.width, cons.height, cons.defaultFg, cons.defaultBg)
	kfmt.Fprintf(w, "%dx%d text framebuffer at 0x%x\n", cons.width, cons.height, cons.fbPhysAddr)
	return nil
}
