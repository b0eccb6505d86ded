package console

import (
	"bytes"
	"testing"

	"gravos/device"
	"gravos/kernel/mem"
	"gravos/multiboot"
)

const testFbAddr = uintptr(0xb8000)

func readCell(cons *VgaTextConsole, x, y uint32) uint16 {
	ch, attr := cons.Char(x, y)
	return uint16(attr)<<8 | uint16(ch)
}

func fillPattern(cons *VgaTextConsole, pat uint16) {
	for i := uint32(0); i < cons.width*cons.height; i++ {
		cons.writeCell(i, pat)
	}
}

func TestVgaTextDimensions(t *testing.T) {
	var cons Device = NewVgaTextConsole(40, 50, 0)
	if w, h := cons.Dimensions(); w != 40 || h != 50 {
		t.Fatalf("expected console dimensions to be 40x50; got %dx%d", w, h)
	}
}

func TestVgaTextDefaultColors(t *testing.T) {
	cons := NewVgaTextConsole(80, 25, 0)
	if fg, bg := cons.DefaultColors(); fg != 7 || bg != 0 {
		t.Fatalf("expected console default colors to be fg:7, bg:0; got fg:%d, bg: %d", fg, bg)
	}
}

func TestVgaTextFill(t *testing.T) {
	defer mem.Reset()

	specs := []struct {
		// Input rect
		x, y, w, h uint32

		// Expected area to be cleared
		expStartX, expStartY, expEndX, expEndY uint32
	}{
		{
			0, 0, 500, 500,
			1, 1, 80, 25,
		},
		{
			10, 10, 11, 50,
			10, 10, 20, 25,
		},
		{
			10, 10, 110, 1,
			10, 10, 80, 10,
		},
		{
			70, 20, 20, 20,
			70, 20, 80, 25,
		},
		{
			90, 25, 20, 20,
			80, 25, 80, 25,
		},
		{
			12, 12, 5, 6,
			12, 12, 16, 17,
		},
		{
			80, 25, 1, 1,
			80, 25, 80, 25,
		},
	}

	cons := NewVgaTextConsole(80, 25, testFbAddr)
	cw, ch := cons.Dimensions()

	testPat := uint16(0xDEAD)
	clearPat := cons.clearChar

nextSpec:
	for specIndex, spec := range specs {
		fillPattern(cons, testPat)

		cons.Fill(spec.x, spec.y, spec.w, spec.h, 0, 0)

		var x, y uint32
		for y = 1; y <= ch; y++ {
			for x = 1; x <= cw; x++ {
				fbVal := readCell(cons, x, y)

				if x < spec.expStartX || y < spec.expStartY || x > spec.expEndX || y > spec.expEndY {
					if fbVal != testPat {
						t.Errorf("[spec %d] expected char at (%d, %d) not to be cleared", specIndex, x, y)
						continue nextSpec
					}
				} else {
					if fbVal != clearPat {
						t.Errorf("[spec %d] expected char at (%d, %d) to be cleared", specIndex, x, y)
						continue nextSpec
					}
				}
			}
		}
	}
}

func TestVgaTextScroll(t *testing.T) {
	defer mem.Reset()

	cons := NewVgaTextConsole(80, 25, testFbAddr)
	cw, ch := cons.Dimensions()

	t.Run("up", func(t *testing.T) {
		for y := uint32(1); y <= ch; y++ {
			for x := uint32(1); x <= cw; x++ {
				cons.writeCell((y-1)*cw+(x-1), uint16(y))
			}
		}

		cons.Scroll(ScrollDirUp, 1)

		for y := uint32(1); y < ch; y++ {
			for x := uint32(1); x <= cw; x++ {
				if got := readCell(cons, x, y); got != uint16(y+1) {
					t.Fatalf("expected char at (%d, %d) to be %d; got %d", x, y, y+1, got)
				}
			}
		}
	})

	t.Run("down", func(t *testing.T) {
		for y := uint32(1); y <= ch; y++ {
			for x := uint32(1); x <= cw; x++ {
				cons.writeCell((y-1)*cw+(x-1), uint16(y))
			}
		}

		cons.Scroll(ScrollDirDown, 1)

		for y := uint32(2); y <= ch; y++ {
			for x := uint32(1); x <= cw; x++ {
				if got := readCell(cons, x, y); got != uint16(y-1) {
					t.Fatalf("expected char at (%d, %d) to be %d; got %d", x, y, y-1, got)
				}
			}
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		fillPattern(cons, 0xbeef)
		cons.Scroll(ScrollDirUp, 0)
		cons.Scroll(ScrollDirUp, ch+1)

		if got := readCell(cons, 1, 1); got != 0xbeef {
			t.Fatalf("expected console contents to be unchanged; got 0x%x", got)
		}
	})
}

func TestVgaTextWrite(t *testing.T) {
	defer mem.Reset()

	cons := NewVgaTextConsole(80, 25, testFbAddr)
	fillPattern(cons, 0)

	specs := []struct {
		fg, bg  uint8
		expAttr uint8
	}{
		{ColorWhite, ColorRed, 0x4f},
		{ColorLightGray, ColorBlack, 0x07},
		// out of range colors fall back to the defaults
		{200, 1, 0x17},
		{1, 200, 0x01},
	}

	for specIndex, spec := range specs {
		cons.Write('!', spec.fg, spec.bg, 1, 1)
		if ch, attr := cons.Char(1, 1); ch != '!' || attr != spec.expAttr {
			t.Errorf("[spec %d] expected '!' with attr 0x%x; got %q with attr 0x%x", specIndex, spec.expAttr, ch, attr)
		}
	}

	// Out of bounds writes are ignored
	cons.Write('X', 1, 1, 0, 1)
	cons.Write('X', 1, 1, 81, 1)
	cons.Write('X', 1, 1, 1, 26)
	if got := mem.ReadUint16(testFbAddr + 80*25*2); got != 0 {
		t.Fatalf("expected write past the framebuffer end to be ignored; got 0x%x", got)
	}

	cons.WriteString("PANIC", ColorWhite, ColorRed, 1, 2)
	if got := mem.ReadUint16(testFbAddr + 80*2); got != 0x4f50 {
		t.Fatalf("expected first cell of second row to be 0x4f50; got 0x%x", got)
	}
}

func TestVgaTextColors(t *testing.T) {
	defer mem.Reset()

	cons := NewVgaTextConsole(80, 25, testFbAddr)

	specs := []struct {
		fg, bg  uint8
		expAttr uint8
	}{
		{ColorWhite, ColorRed, 0x4f},
		{ColorLightGray, ColorBlack, 0x07},
		// out of range colors fall back to the defaults
		{colorCount, ColorBlue, 0x17},
		{ColorWhite, 0xff, 0x0f},
	}

	for specIndex, spec := range specs {
		cons.Write('g', spec.fg, spec.bg, 1, 1)
		if ch, attr := cons.Char(1, 1); ch != 'g' || attr != spec.expAttr {
			t.Errorf("[spec %d] expected 'g' with attribute 0x%x; got %q with 0x%x", specIndex, spec.expAttr, ch, attr)
		}
	}

	if got := Attr(ColorWhite, ColorBlue); got != 0x1f {
		t.Fatalf("expected Attr to pack white on blue as 0x1f; got 0x%x", got)
	}
}

func TestVgaTextDriverInterface(t *testing.T) {
	defer mem.Reset()

	var dev device.Driver = NewVgaTextConsole(80, 25, testFbAddr)

	if dev.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	if major, minor, patch := dev.DriverVersion(); major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}

	mem.WriteUint16(testFbAddr, 0xdead)

	var buf bytes.Buffer
	if err := dev.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	if got := mem.ReadUint16(testFbAddr); got != 0x0720 {
		t.Fatalf("expected DriverInit to clear the console; got 0x%x", got)
	}

	if exp := "80x25 text framebuffer at 0xb8000\n"; buf.String() != exp {
		t.Fatalf("expected driver init output %q; got %q", exp, buf.String())
	}
}

func TestVgaTextProbe(t *testing.T) {
	defer func() {
		getFramebufferInfoFn = multiboot.GetFramebufferInfo
	}()

	specs := []struct {
		info   *multiboot.FramebufferInfo
		expDrv bool
	}{
		{nil, false},
		{&multiboot.FramebufferInfo{Type: multiboot.FramebufferTypeRGB}, false},
		{&multiboot.FramebufferInfo{Type: multiboot.FramebufferTypeEGA, Width: 80, Height: 25, PhysAddr: 0xb8000}, true},
	}

	for specIndex, spec := range specs {
		getFramebufferInfoFn = func() *multiboot.FramebufferInfo { return spec.info }

		if drv := probeForVgaTextConsole(); (drv != nil) != spec.expDrv {
			t.Errorf("[spec %d] expected probe to return a driver: %t; got %v", specIndex, spec.expDrv, drv)
		}
	}
}
