// Package console provides drivers for the text consoles that the boot
// loader leaves initialized.
package console

// ScrollDir selects the direction of a Scroll call.
type ScrollDir uint8

const (
	ScrollDirUp ScrollDir = iota
	ScrollDirDown
)

// colorCount is the number of colors an attribute nibble can select.
const colorCount = 16

// Attr packs a foreground and background color into an attribute byte.
func Attr(fg, bg uint8) uint8 {
	return bg<<4 | fg&0x0f
}

// Device is a character cell console. It backs the TTY and is written to
// directly by the fault handlers. Coordinates are 1-based; the top-left
// cell is (1, 1).
type Device interface {
	// Dimensions returns the number of columns and rows.
	Dimensions() (cols, rows uint32)

	// DefaultColors returns the colors of a cleared cell.
	DefaultColors() (fg, bg uint8)

	// Fill clears the cells of the given rectangle to the given colors.
	// The rectangle is clipped to the console.
	Fill(x, y, width, height uint32, fg, bg uint8)

	// Scroll moves the contents by lines rows. The rows that are
	// uncovered keep their previous contents.
	Scroll(dir ScrollDir, lines uint32)

	// Write stores ch at (x, y). Writes outside the console are dropped.
	Write(ch byte, fg, bg uint8, x, y uint32)
}
