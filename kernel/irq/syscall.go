package irq

import (
	"gravos/kernel/gate"
	"gravos/kernel/mem"
	"gravos/kernel/mm/vmm"
)

// System call numbers passed in EAX.
const (
	SysRead   = uint32(3)
	SysWrite  = uint32(4)
	SysSbrk   = uint32(45)
	SysReboot = uint32(88)
)

// UserHeapStart is the initial program break.
const UserHeapStart = uint32(0x800000)

// writeChunkSize is the number of user bytes gathered before they are
// forwarded to the console.
const writeChunkSize = 128

// ProgramBreak tracks the end of the user heap. It only ever grows.
type ProgramBreak struct {
	cur     uint32
	ceiling uint64
}

// NewProgramBreak returns a break starting at start that may not reach
// ceiling.
func NewProgramBreak(start uint32, ceiling mem.Size) ProgramBreak {
	return ProgramBreak{cur: start, ceiling: uint64(ceiling)}
}

// Current returns the current break.
func (b *ProgramBreak) Current() uint32 {
	return b.cur
}

// Grow moves the break up by incr bytes and returns the previous break. If
// the new break would reach the ceiling the break is left unchanged and 0 is
// returned.
func (b *ProgramBreak) Grow(incr uint32) uint32 {
	next := uint64(b.cur) + uint64(incr)
	if next >= b.ceiling {
		return 0
	}

	prev := b.cur
	b.cur = uint32(next)
	return prev
}

// syscall dispatches the system call selected by EAX. Unknown calls leave
// the registers untouched.
func (d *Dispatcher) syscall(regs *gate.Registers) {
	switch regs.EAX {
	case SysRead:
		regs.EAX = uint32(d.read())
	case SysWrite:
		d.write(regs)
	case SysSbrk:
		regs.EAX = d.brk.Grow(regs.EBX)
	case SysReboot:
		d.reboot()
	}
}

// read blocks until a key that produces a character is pressed. Interrupts
// are enabled while waiting so the keyboard handler can run.
func (d *Dispatcher) read() byte {
	prevIF := interruptsEnabledFn()
	enableInterruptsFn()

	ch := d.kbd.GetChar()
	for ch == 0 {
		pauseFn()
		ch = d.kbd.GetChar()
	}

	if !prevIF {
		disableInterruptsFn()
	}
	return ch
}

// write copies EDX bytes starting at the user address in ECX to the
// console. Every byte is fetched through the MMU with the privilege of the
// caller; the first inaccessible byte raises a page fault.
func (d *Dispatcher) write(regs *gate.Registers) {
	if d.mmu == nil {
		return
	}

	var (
		user  = regs.CS&3 == 3
		chunk = make([]byte, 0, writeChunkSize)
	)

	for i := uint32(0); i < regs.EDX; i++ {
		addr := uintptr(regs.ECX + i)
		physAddr, err := d.mmu.Access(addr, user, false)
		if err != nil {
			d.console.Write(chunk)

			writeCR2Fn(uint32(addr))
			faultRegs := *regs
			faultRegs.Info = vmm.PageFaultErrorCode(err, user, false)
			d.table.Fault(gate.PageFaultException, &faultRegs)
			return
		}

		if chunk = append(chunk, mem.ReadUint8(physAddr)); len(chunk) == writeChunkSize {
			d.console.Write(chunk)
			chunk = chunk[:0]
		}
	}

	if len(chunk) != 0 {
		d.console.Write(chunk)
	}
}

// reboot pulses the reset line through the keyboard controller. If the
// machine is still running afterwards the processor is halted.
func (d *Dispatcher) reboot() {
	resetControllerFn()
	haltFn()
}
