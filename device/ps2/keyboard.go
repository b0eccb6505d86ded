package ps2

import (
	"io"

	"gravos/kernel"
	"gravos/kernel/kfmt"
)

// releaseBit is set in the scancode of key release events.
const releaseBit = uint8(0x80)

// Arrow key scancodes. They produce no character.
const (
	ScancodeUp    = uint8(0x48)
	ScancodeDown  = uint8(0x50)
	ScancodeLeft  = uint8(0x4b)
	ScancodeRight = uint8(0x4d)
)

// scancodeSet1 maps set 1 make codes to ASCII characters.
var scancodeSet1 = [0x80]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
	0x0c: '-', 0x0d: '=',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1e: 'a', 0x1f: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2c: 'z', 0x2d: 'x', 0x2e: 'c', 0x2f: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x33: ',', 0x34: '.', 0x35: '/',
	0x39: ' ',
	0x1c: '\n',
	0x0e: '\b',
}

// ScancodeToASCII returns the character produced by pressing the key with
// the given make code or 0 if the key does not produce one.
func ScancodeToASCII(scancode uint8) byte {
	if scancode >= releaseBit {
		return 0
	}
	return scancodeSet1[scancode]
}

// ScancodeForASCII returns the make code of the key that produces ch.
func ScancodeForASCII(ch byte) (uint8, bool) {
	if ch == 0 {
		return 0, false
	}

	for scancode, mapped := range scancodeSet1 {
		if mapped == ch {
			return uint8(scancode), true
		}
	}
	return 0, false
}

// Keyboard decodes scancodes delivered by the controller and latches the
// last character typed.
type Keyboard struct {
	lastKey byte
}

// NewKeyboard returns a keyboard driver.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Decode processes a scancode read from the data port. It returns the key's
// make code and whether the event is a release. Presses of keys that produce
// a character update the latch.
func (k *Keyboard) Decode(scancode uint8) (code uint8, released bool) {
	if scancode&releaseBit != 0 {
		return scancode &^ releaseBit, true
	}

	if ch := ScancodeToASCII(scancode); ch != 0 {
		k.lastKey = ch
	}
	return scancode, false
}

// GetChar returns and clears the latched character. It returns 0 if no
// character has been typed since the last call.
func (k *Keyboard) GetChar() byte {
	ch := k.lastKey
	k.lastKey = 0
	return ch
}

// DriverName returns the name of this driver.
func (k *Keyboard) DriverName() string {
	return "ps2_keyboard"
}

// DriverVersion returns the version of this driver.
func (k *Keyboard) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit discards any bytes left in the controller output buffer.
func (k *Keyboard) DriverInit(w io.Writer) *kernel.Error {
	var discarded int
	for ; discarded < 16 && portReadByteFn(StatusPort)&StatusOutputFull != 0; discarded++ {
		portReadByteFn(DataPort)
	}

	if discarded != 0 {
		kfmt.Fprintf(w, "discarded %d stale bytes\n", discarded)
	}
	return nil
}
