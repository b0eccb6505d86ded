// Package machine assembles the emulated PC the kernel runs on: the
// processor and physical memory from the kernel packages plus an 8259 pair,
// an 8042 PS/2 controller, a serial port and a boot loader that leaves a
// multiboot info block in memory. Host tools and tests drive the machine
// through its input methods and deliver the resulting interrupts.
package machine

import (
	"io"
	"time"

	"gravos/device/ps2"
	"gravos/device/serial"
	"gravos/kernel/cpu"
	"gravos/kernel/gate"
	"gravos/kernel/mem"
	"gravos/multiboot"
)

const (
	// InfoAddr is where the boot loader places the multiboot info block.
	InfoAddr = uintptr(0x9000)

	defaultMemoryMb = 128

	kernelCodeSelector = 0x08
	userCodeSelector   = 0x1b

	// maxDeliveries bounds the interrupts delivered by a single
	// DeliverPending call.
	maxDeliveries = 2 * outputQueueSize
)

// Config describes the hardware of a machine.
type Config struct {
	// Serial receives the bytes transmitted on COM1. A nil writer leaves
	// COM1 unpopulated.
	Serial io.Writer

	// CmdLine is passed to the kernel through the boot info.
	CmdLine string

	// MemoryMb is the installed memory. It defaults to 128.
	MemoryMb uint32

	// ResetFn is invoked when the reset line is pulsed. It defaults to
	// cpu.Reset.
	ResetFn func()
}

// Machine wires the emulated devices to the processor's port bus.
type Machine struct {
	pic  *PIC
	kbc  *Controller
	uart *UART

	table *gate.Table
}

// New powers on a machine: memory is cleared, the processor is reset, the
// devices are attached to the port bus and the boot info is written.
func New(cfg Config) *Machine {
	mem.Reset()
	cpu.PowerOn()
	cpu.DetachPortDevices()

	if cfg.MemoryMb == 0 {
		cfg.MemoryMb = defaultMemoryMb
	}
	if cfg.ResetFn == nil {
		cfg.ResetFn = cpu.Reset
	}

	m := &Machine{pic: &PIC{}}
	m.kbc = NewController(m.pic.Raise, cfg.ResetFn)

	cpu.AttachPortDevice(m.pic, picMasterCommand, picMasterData, picSlaveCommand, picSlaveData)
	cpu.AttachPortDevice(m.kbc, ps2.DataPort, ps2.StatusPort)
	if cfg.Serial != nil {
		m.uart = NewUART(serial.COM1, cfg.Serial)
		cpu.AttachPortDevice(m.uart, m.uart.Ports()...)
	}

	info := multiboot.Info{
		LowerMemKb: 639,
		UpperMemKb: (cfg.MemoryMb - 1) * 1024,
		CmdLine:    cfg.CmdLine,
		MemoryMap: []multiboot.MemoryMapEntry{
			{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
			{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
			{PhysAddress: 0xf0000, Length: 0x10000, Type: multiboot.MemReserved},
			{PhysAddress: 0x100000, Length: uint64(cfg.MemoryMb-1) * uint64(mem.Mb), Type: multiboot.MemAvailable},
		},
		Framebuffer: &multiboot.FramebufferInfo{
			PhysAddr: 0xb8000,
			Pitch:    160,
			Width:    80,
			Height:   25,
			Bpp:      16,
			Type:     multiboot.FramebufferTypeEGA,
		},
	}
	info.Write(InfoAddr)

	return m
}

// Attach connects the interrupt descriptor table that the processor
// delivers hardware interrupts through.
func (m *Machine) Attach(table *gate.Table) {
	m.table = table
}

// PIC returns the interrupt controller pair.
func (m *Machine) PIC() *PIC {
	return m.pic
}

// Controller returns the PS/2 controller.
func (m *Machine) Controller() *Controller {
	return m.kbc
}

// UART returns COM1 or nil if the port is not populated.
func (m *Machine) UART() *UART {
	return m.uart
}

// PressKey sends the make code of a key.
func (m *Machine) PressKey(scancode uint8) {
	m.kbc.SendScancode(scancode &^ 0x80)
	m.DeliverPending()
}

// ReleaseKey sends the break code of a key.
func (m *Machine) ReleaseKey(scancode uint8) {
	m.kbc.SendScancode(scancode | 0x80)
	m.DeliverPending()
}

// TypeChar presses and releases the key that produces ch. It returns false
// if no key produces ch.
func (m *Machine) TypeChar(ch byte) bool {
	scancode, ok := ps2.ScancodeForASCII(ch)
	if !ok {
		return false
	}

	m.PressKey(scancode)
	m.ReleaseKey(scancode)
	return true
}

// MoveMouse moves the mouse by dx, dy (dy grows downwards) with the given
// buttons held. It returns false if the guest has not enabled the mouse.
func (m *Machine) MoveMouse(dx, dy int, buttons ps2.MouseButton) bool {
	if !m.kbc.SendMousePacket(dx, dy, buttons) {
		return false
	}
	m.DeliverPending()
	return true
}

// Tick raises the timer interrupt.
func (m *Machine) Tick() {
	m.pic.Raise(0)
	m.DeliverPending()
}

// DeliverPending delivers the interrupts requested by the devices until
// none is pending or the processor has interrupts disabled. It returns the
// number of delivered interrupts.
func (m *Machine) DeliverPending() int {
	if m.table == nil {
		return 0
	}

	var delivered int
	for delivered < maxDeliveries {
		num, ok := m.pic.Pending()
		if !ok {
			// Bytes left behind by a coalesced request need another one.
			if !m.kbc.Reassert() {
				break
			}
			if num, ok = m.pic.Pending(); !ok {
				break
			}
		}

		if !m.table.Interrupt(num, m.interruptedRegs(), m.pic.Acknowledge) {
			break
		}
		delivered++
	}

	return delivered
}

func (m *Machine) interruptedRegs() *gate.Registers {
	if cpu.CPL() == 3 {
		return &gate.Registers{CS: userCodeSelector}
	}
	return &gate.Registers{CS: kernelCodeSelector}
}

// Run raises the timer interrupt every period and delivers pending
// interrupts until stop is closed or the processor halts.
func (m *Machine) Run(stop <-chan struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	halt := cpu.HaltSignal()
	for {
		select {
		case <-stop:
			return
		case <-halt:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}
