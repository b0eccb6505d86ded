// Package sys provides the system call interface used by user programs. Each
// call loads the argument registers and traps into the kernel through the
// system call vector with the privilege of the calling program.
package sys

import (
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/gate"
	"gravos/kernel/gdt"
	"gravos/kernel/irq"
	"gravos/kernel/mem"
	"gravos/kernel/mm/vmm"
	"gravos/user/heap"
)

var writeCR2Fn = cpu.WriteCR2

// MMU translates user addresses with user privileges.
type MMU interface {
	Access(virtAddr uintptr, user, write bool) (uintptr, *kernel.Error)
}

// Process describes the user program running on top of the kernel.
type Process struct {
	idt          *gate.Table
	codeSelector uint16
	dataSelector uint16

	mem  *Memory
	heap *heap.Heap
}

// NewProcess returns a process that enters the kernel through idt using the
// user segments of descTable and accesses its memory through mmu.
func NewProcess(idt *gate.Table, descTable *gdt.Table, mmu MMU) *Process {
	p := &Process{
		idt:          idt,
		codeSelector: descTable.Selector(gdt.UserCode),
		dataSelector: descTable.Selector(gdt.UserData),
	}
	p.mem = &Memory{proc: p, mmu: mmu}
	p.heap = heap.New(p.mem, p.Sbrk)
	return p
}

// Memory returns the accessor for the address space of the process.
func (p *Process) Memory() *Memory {
	return p.mem
}

// Heap returns the user heap of the process.
func (p *Process) Heap() *heap.Heap {
	return p.heap
}

func (p *Process) regs() *gate.Registers {
	return &gate.Registers{CS: uint32(p.codeSelector), SS: uint32(p.dataSelector)}
}

func (p *Process) syscall(num, ebx, ecx, edx uint32) uint32 {
	regs := p.regs()
	regs.EAX, regs.EBX, regs.ECX, regs.EDX = num, ebx, ecx, edx
	p.idt.Trap(gate.Syscall, regs)
	return regs.EAX
}

// Read blocks until a key is pressed and returns its character.
func (p *Process) Read() byte {
	return byte(p.syscall(irq.SysRead, 0, 0, 0))
}

// Write emits count bytes starting at the user address buf to the console.
func (p *Process) Write(buf, count uint32) {
	p.syscall(irq.SysWrite, 1, buf, count)
}

// Print copies s to a temporary heap block and writes it to the console.
func (p *Process) Print(s string) {
	if len(s) == 0 {
		return
	}

	buf := p.heap.Allocate(uint32(len(s)))
	if buf == 0 {
		return
	}
	defer p.heap.Release(buf)

	for i := 0; i < len(s); i++ {
		p.mem.WriteUint8(buf+uint32(i), s[i])
	}
	p.Write(buf, uint32(len(s)))
}

// Sbrk grows the program break by incr bytes and returns the previous break
// or 0 if the heap cannot grow.
func (p *Process) Sbrk(incr uint32) uint32 {
	return p.syscall(irq.SysSbrk, incr, 0, 0)
}

// Reboot asks the kernel to reset the machine. It does not return.
func (p *Process) Reboot() {
	p.syscall(irq.SysReboot, 0, 0, 0)
}

// Memory implements heap.Memory over the user address space. Every access
// goes through the MMU; accesses to pages that are not mapped or not user
// accessible raise a page fault on behalf of the process.
type Memory struct {
	proc *Process
	mmu  MMU
}

func (m *Memory) translate(addr uint32, write bool) (uintptr, bool) {
	physAddr, err := m.mmu.Access(uintptr(addr), true, write)
	if err != nil {
		writeCR2Fn(addr)
		regs := m.proc.regs()
		regs.Info = vmm.PageFaultErrorCode(err, true, write)
		m.proc.idt.Exception(gate.PageFaultException, regs)
		return 0, false
	}
	return physAddr, true
}

// ReadUint8 returns the byte at addr.
func (m *Memory) ReadUint8(addr uint32) uint8 {
	physAddr, ok := m.translate(addr, false)
	if !ok {
		return 0
	}
	return mem.ReadUint8(physAddr)
}

// WriteUint8 stores val at addr.
func (m *Memory) WriteUint8(addr uint32, val uint8) {
	if physAddr, ok := m.translate(addr, true); ok {
		mem.WriteUint8(physAddr, val)
	}
}

// ReadUint32 returns the little-endian word at addr.
func (m *Memory) ReadUint32(addr uint32) uint32 {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		v |= uint32(m.ReadUint8(addr+i)) << (8 * i)
	}
	return v
}

// WriteUint32 stores val at addr in little-endian order.
func (m *Memory) WriteUint32(addr, val uint32) {
	for i := uint32(0); i < 4; i++ {
		m.WriteUint8(addr+i, uint8(val>>(8*i)))
	}
}

// Copy copies size bytes from src to dst.
func (m *Memory) Copy(dst, src, size uint32) {
	for i := uint32(0); i < size; i++ {
		m.WriteUint8(dst+i, m.ReadUint8(src+i))
	}
}

// Set fills size bytes starting at addr with val.
func (m *Memory) Set(addr uint32, val uint8, size uint32) {
	for i := uint32(0); i < size; i++ {
		m.WriteUint8(addr+i, val)
	}
}
