// Package kmain brings up the kernel: it builds the descriptor tables,
// installs the interrupt handlers, enables paging, detects the attached
// hardware and finally enables interrupts.
package kmain

import (
	"gravos/device/ps2"
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/gate"
	"gravos/kernel/gdt"
	"gravos/kernel/hal"
	"gravos/kernel/irq"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
	"gravos/kernel/mm/kheap"
	"gravos/kernel/mm/vmm"
	"gravos/multiboot"

	// Drivers register themselves with the device package.
	_ "gravos/device/serial"
	_ "gravos/device/tty"
	_ "gravos/device/video/console"
)

const (
	// The kernel heap window ends where the user program break starts so
	// that sbrk can never hand out kernel tables.
	heapStart = uintptr(0x400000)
	heapSize  = mem.Size(uintptr(irq.UserHeapStart) - heapStart)

	// memCeiling is the limit of every segment in the descriptor table.
	memCeiling = 64 * mem.Mb
)

var (
	// The following functions are mocked by tests.
	panicFn             = kfmt.Panic
	detectHardwareFn    = hal.DetectHardware
	initDriverFn        = hal.InitDriver
	enableInterruptsFn  = cpu.EnableInterrupts
	waitForInterruptFn  = cpu.WaitForInterrupt
	setCPLFn            = cpu.SetCPL
	interruptsEnabledFn = cpu.InterruptsEnabled

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoKeyboard    = &kernel.Error{Module: "kmain", Message: "keyboard initialization failed"}
)

// Config tunes the bootstrap.
type Config struct {
	// InfoPtr is the address of the multiboot info block left by the
	// boot loader.
	InfoPtr uintptr

	// Input receives the keyboard and mouse events.
	Input irq.InputListener
}

// System owns the kernel singletons created by Boot.
type System struct {
	Heap       kheap.Heap
	GDT        *gdt.Table
	IDT        *gate.Table
	Dispatcher *irq.Dispatcher
	Pager      *vmm.PageTableManager

	Keyboard *ps2.Keyboard

	// Mouse is nil if the mouse could not be initialized.
	Mouse *ps2.Mouse

	// Framebuffer is nil if the boot loader did not report one.
	Framebuffer *multiboot.FramebufferInfo
}

// Boot initializes the kernel subsystems in dependency order. Any failure is
// fatal: it is reported through kfmt.Panic and Boot returns nil.
func Boot(cfg Config) *System {
	sys, err := boot(cfg)
	if err != nil {
		panicFn(err)
		return nil
	}
	return sys
}

func boot(cfg Config) (*System, *kernel.Error) {
	var (
		s   = &System{Keyboard: ps2.NewKeyboard()}
		err *kernel.Error
	)

	multiboot.SetInfoPtr(cfg.InfoPtr)

	s.Heap.Init(heapStart, heapSize)
	kfmt.Printf("[kmain] kernel heap at 0x%x (%dKb)\n", heapStart, uint32(heapSize/mem.Kb))

	if s.GDT, err = gdt.Build(s.Heap.Allocate, memCeiling); err != nil {
		return nil, err
	}
	if err = s.GDT.Activate(); err != nil {
		return nil, err
	}

	if s.IDT, err = gate.NewTable(s.Heap.Allocate, s.GDT.Selector(gdt.KernelCode)); err != nil {
		return nil, err
	}

	s.Pager = vmm.NewPageTableManager(s.Heap.AllocFrame)
	s.Mouse = ps2.NewMouse(0, 0)
	s.Dispatcher = irq.NewDispatcher(s.IDT, irq.Config{
		Keyboard: s.Keyboard,
		Mouse:    s.Mouse,
		Input:    cfg.Input,
		MMU:      s.Pager,
	})
	if err = s.Dispatcher.Init(); err != nil {
		return nil, err
	}

	if err = s.Pager.Init(); err != nil {
		return nil, err
	}

	if s.Framebuffer = multiboot.GetFramebufferInfo(); s.Framebuffer != nil {
		if err = s.Pager.MapRegion(uintptr(s.Framebuffer.PhysAddr), s.Framebuffer.Size()); err != nil {
			return nil, err
		}
	}

	detectHardwareFn()

	if !initDriverFn(s.Keyboard) {
		return nil, errNoKeyboard
	}
	if !initDriverFn(s.Mouse) {
		kfmt.Printf("[kmain] warning: continuing without a mouse\n")
		s.Mouse = nil
	}

	enableInterruptsFn()
	kfmt.Printf("[kmain] boot complete; heap usage %d bytes\n", uint32(s.Heap.Used()))
	return s, nil
}

// EnterUserMode runs fn at privilege level 3. Traps taken while fn runs
// switch to the kernel stack at esp0. The previous privilege level is
// restored when fn returns.
func (s *System) EnterUserMode(esp0 uint32, fn func()) {
	s.GDT.SetKernelStack(esp0)

	setCPLFn(3)
	defer setCPLFn(0)

	fn()
}

// Kmain boots the kernel using the multiboot info at multibootInfoPtr and
// then idles, servicing interrupts, until the processor halts.
//
// Kmain is not expected to return.
func Kmain(multibootInfoPtr uintptr) {
	if Boot(Config{InfoPtr: multibootInfoPtr}) == nil {
		return
	}

	for interruptsEnabledFn() {
		waitForInterruptFn()
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating the call as dead code.
	panicFn(errKmainReturned)
}
