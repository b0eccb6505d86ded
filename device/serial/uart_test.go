package serial

import (
	"bytes"
	"testing"

	"gravos/kernel/cpu"
	"gravos/multiboot"
)

// fakeUART implements cpu.PortDevice.
type fakeUART struct {
	regs     [8]uint8
	tx       []byte
	writes   []uint8
	lsrPolls int
	busy     int
}

func (u *fakeUART) ReadPort(port uint16) uint8 {
	reg := port - COM1
	if reg == regLineStatus {
		u.lsrPolls++
		if u.busy > 0 {
			u.busy--
			return 0
		}
		return lineStatusTHREmpty
	}
	return u.regs[reg]
}

func (u *fakeUART) WritePort(port uint16, val uint8) {
	reg := port - COM1
	u.writes = append(u.writes, uint8(reg), val)
	if reg == regData && u.regs[regLineControl]&lineControlDLAB == 0 {
		u.tx = append(u.tx, val)
		return
	}
	u.regs[reg] = val
}

func attachUART(u *fakeUART) {
	cpu.AttachPortDevice(u, COM1, COM1+1, COM1+2, COM1+3, COM1+4, COM1+5, COM1+6, COM1+7)
}

func TestUARTWrite(t *testing.T) {
	defer cpu.DetachPortDevices()

	fake := &fakeUART{busy: 3}
	attachUART(fake)

	uart := NewUART(COM1)
	n, err := uart.Write([]byte("ok\n"))
	if err != nil || n != 3 {
		t.Fatalf("expected to write 3 bytes; got %d, %v", n, err)
	}

	if exp := "ok\r\n"; string(fake.tx) != exp {
		t.Fatalf("expected transmitted bytes %q; got %q", exp, fake.tx)
	}

	if fake.lsrPolls != 4+3 {
		t.Fatalf("expected the line status to be polled until the transmitter is ready; got %d polls", fake.lsrPolls)
	}
}

func TestUARTDriverInit(t *testing.T) {
	defer cpu.DetachPortDevices()

	fake := &fakeUART{}
	attachUART(fake)

	var buf bytes.Buffer
	uart := NewUART(COM1)
	if err := uart.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	exp := []uint8{
		regIntEnable, 0x00,
		regLineControl, 0x80,
		regData, 0x03,
		regIntEnable, 0x00,
		regLineControl, 0x03,
		regFIFOControl, 0xc7,
		regModemControl, 0x0b,
	}
	if !bytes.Equal(fake.writes, exp) {
		t.Fatalf("expected register writes:\n%v\ngot:\n%v", exp, fake.writes)
	}

	if len(fake.tx) != 0 {
		t.Fatal("expected the divisor write not to be transmitted")
	}

	if exp := "port 0x3f8 at 38400 baud\n"; buf.String() != exp {
		t.Fatalf("expected output %q; got %q", exp, buf.String())
	}

	if uart.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	if major, minor, patch := uart.DriverVersion(); major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}
}

func TestProbeForCOM1(t *testing.T) {
	defer func() {
		cpu.DetachPortDevices()
		getBootCmdLineFn = multiboot.GetBootCmdLine
	}()

	cmdLine := map[string]string{}
	getBootCmdLineFn = func() map[string]string { return cmdLine }

	if drv := probeForCOM1(); drv != nil {
		t.Fatal("expected probe to fail on a floating bus")
	}

	attachUART(&fakeUART{})
	if drv := probeForCOM1(); drv == nil {
		t.Fatal("expected probe to detect the UART")
	}

	cmdLine["serial"] = "off"
	if drv := probeForCOM1(); drv != nil {
		t.Fatal("expected serial=off to disable the probe")
	}
}
