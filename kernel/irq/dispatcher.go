// Package irq routes the processor exceptions, the remapped hardware
// interrupts and the system call vector to the kernel's handlers.
package irq

import (
	"io"

	"gravos/device/ps2"
	"gravos/device/video/console"
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/gate"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
)

var (
	// The following functions are used by tests to mock calls to the cpu
	// package and to intercept halting.
	readCR2Fn           = cpu.ReadCR2
	writeCR2Fn          = cpu.WriteCR2
	interruptsEnabledFn = cpu.InterruptsEnabled
	enableInterruptsFn  = cpu.EnableInterrupts
	disableInterruptsFn = cpu.DisableInterrupts
	pauseFn             = cpu.Pause
	haltFn              = cpu.Halt
	resetControllerFn   = ps2.Reset
	panicFn             = kfmt.Panic

	errIRQBeforeRemap = &kernel.Error{Module: "irq", Message: "hardware interrupt registered before the controllers were remapped"}
	errPageFault      = &kernel.Error{Module: "irq", Message: "unrecoverable page fault"}
	errException      = &kernel.Error{Module: "irq", Message: "unhandled processor exception"}
)

// MMU translates virtual addresses on behalf of the system call handlers
// using the privilege of the caller.
type MMU interface {
	Access(virtAddr uintptr, user, write bool) (uintptr, *kernel.Error)
}

// InputListener receives the decoded keyboard and mouse events.
type InputListener interface {
	KeyDown(scancode uint8)
	KeyUp(scancode uint8)
	MouseMoved(ev ps2.MouseEvent)
}

// Config collects the collaborators of a Dispatcher. Zero fields are
// replaced by defaults in NewDispatcher.
type Config struct {
	// Keyboard decodes the keyboard IRQ and backs the read system call.
	Keyboard *ps2.Keyboard

	// Mouse decodes the mouse IRQ. Mouse interrupts are only acknowledged
	// if no mouse is configured.
	Mouse *ps2.Mouse

	// Input receives the decoded events.
	Input InputListener

	// Console receives the output of the write system call. It defaults
	// to the active kfmt output sink.
	Console io.Writer

	// MMU validates user buffers. The write system call refuses to run
	// without one.
	MMU MMU

	// Display shows the page fault message. It defaults to the 80x25 VGA
	// text buffer.
	Display *console.VgaTextConsole
}

// Dispatcher owns the interrupt descriptor table and the state shared by
// the interrupt handlers.
type Dispatcher struct {
	table   *gate.Table
	pic     PIC
	kbd     *ps2.Keyboard
	mouse   *ps2.Mouse
	input   InputListener
	console io.Writer
	mmu     MMU
	display *console.VgaTextConsole

	brk   ProgramBreak
	ticks uint64
}

// NewDispatcher creates a dispatcher that installs its handlers in table.
func NewDispatcher(table *gate.Table, cfg Config) *Dispatcher {
	d := &Dispatcher{
		table:   table,
		kbd:     cfg.Keyboard,
		mouse:   cfg.Mouse,
		input:   cfg.Input,
		console: cfg.Console,
		mmu:     cfg.MMU,
		display: cfg.Display,
		brk:     NewProgramBreak(UserHeapStart, mem.IdentityMapCeiling),
	}

	if d.kbd == nil {
		d.kbd = ps2.NewKeyboard()
	}
	if d.input == nil {
		d.input = nopListener{}
	}
	if d.console == nil {
		d.console = kfmt.Output
	}
	if d.display == nil {
		d.display = console.NewVgaTextConsole(console.TextColumns, console.TextRows, console.TextBufferAddr)
	}

	return d
}

// Init routes the exception vectors to the dispatcher, remaps the interrupt
// controllers, installs the hardware interrupt and system call handlers and
// loads the descriptor table.
func (d *Dispatcher) Init() *kernel.Error {
	for vector := gate.InterruptNumber(0); vector < gate.ExceptionCount; vector++ {
		d.table.HandleInterrupt(vector, 0, d.handlerFor(vector))
	}

	d.pic.Remap()

	for line := 0; line < gate.IRQCount; line++ {
		if err := d.registerIRQ(gate.IRQBase + gate.InterruptNumber(line)); err != nil {
			return err
		}
	}

	d.table.HandleInterrupt(gate.Syscall, 3, d.handlerFor(gate.Syscall))
	d.table.Load()

	kfmt.Printf("[irq] controllers remapped to 0x%x-0x%x; syscall vector 0x%x\n",
		uint8(gate.IRQBase), uint8(gate.IRQBase)+gate.IRQCount-1, uint8(gate.Syscall))
	return nil
}

// registerIRQ installs the handler for a hardware interrupt vector. The
// controllers must be remapped first or the vector would alias an
// exception.
func (d *Dispatcher) registerIRQ(num gate.InterruptNumber) *kernel.Error {
	if !d.pic.Remapped() {
		return errIRQBeforeRemap
	}

	d.table.HandleInterrupt(num, 0, d.handlerFor(num))
	return nil
}

func (d *Dispatcher) handlerFor(num gate.InterruptNumber) gate.Handler {
	return func(regs *gate.Registers) {
		d.HandleInterrupt(num, regs)
	}
}

// HandleInterrupt is the common entry point of every installed vector.
func (d *Dispatcher) HandleInterrupt(num gate.InterruptNumber, regs *gate.Registers) {
	switch {
	case num == gate.PageFaultException:
		d.pageFault(regs)
	case num.IsException():
		d.exception(num, regs)
	case num == gate.Syscall:
		d.syscall(regs)
	case num.IsIRQ():
		d.hardwareInterrupt(num)
	}
}

func (d *Dispatcher) hardwareInterrupt(num gate.InterruptNumber) {
	switch num {
	case gate.IRQTimer:
		d.ticks++
	case gate.IRQKeyboard:
		d.keyboardInterrupt()
	case gate.IRQMouse:
		d.mouseInterrupt()
	}

	d.pic.Acknowledge(num)
}

func (d *Dispatcher) keyboardInterrupt() {
	code, released := d.kbd.Decode(portReadByteFn(ps2.DataPort))
	if released {
		d.input.KeyUp(code)
		return
	}
	d.input.KeyDown(code)
}

func (d *Dispatcher) mouseInterrupt() {
	if d.mouse == nil {
		return
	}

	if ev, ok := d.mouse.HandleInterrupt(); ok {
		d.input.MouseMoved(ev)
	}
}

// Ticks returns the number of timer interrupts serviced so far.
func (d *Dispatcher) Ticks() uint64 {
	return d.ticks
}

// Table returns the descriptor table managed by the dispatcher.
func (d *Dispatcher) Table() *gate.Table {
	return d.table
}

// Break returns the current user program break.
func (d *Dispatcher) Break() uint32 {
	return d.brk.Current()
}

type nopListener struct{}

func (nopListener) KeyDown(uint8)             {}
func (nopListener) KeyUp(uint8)               {}
func (nopListener) MouseMoved(ps2.MouseEvent) {}
