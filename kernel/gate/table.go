// Package gate maintains the interrupt descriptor table and implements the
// processor's gate walk: it reads the gate for a vector from the table
// loaded in IDTR, performs the privilege checks, switches to ring 0 and
// invokes the handler installed for the vector.
package gate

import (
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/gdt"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
)

const (
	gateCount      = 256
	descriptorSize = 8
	tableSize      = gateCount * descriptorSize

	// Each vector has its own entry stub that saves the register state and
	// jumps to the common dispatch code. Gates point at these addresses.
	entryStubBase = uint32(0x00101000)
	entryStubSize = uint32(16)

	// ignoreStub returns immediately without invoking any handler.
	ignoreStub = entryStubBase + gateCount*entryStubSize

	// idtSelectorFlag is set in error codes that reference an IDT entry.
	idtSelectorFlag = uint32(2)
)

// Handler is invoked by the entry stub of a vector with the register state
// captured when the trap was taken.
type Handler func(*Registers)

// AllocFn reserves size bytes of kernel memory and returns their address or
// 0 if the request cannot be satisfied.
type AllocFn func(size mem.Size) uintptr

type deliveryKind uint8

const (
	softwareInterrupt deliveryKind = iota
	hardwareInterrupt
	exception
)

var (
	// The following functions are used by tests to observe and mock the
	// processor state touched while delivering a trap.
	acquireContextFn    = cpu.AcquireContext
	releaseContextFn    = cpu.ReleaseContext
	notifyInterruptFn   = cpu.NotifyInterrupt
	loadIDTFn           = cpu.LoadIDT
	idtrFn              = cpu.IDTR
	cplFn               = cpu.CPL
	setCPLFn            = cpu.SetCPL
	interruptsEnabledFn = cpu.InterruptsEnabled
	enableInterruptsFn  = cpu.EnableInterrupts
	disableInterruptsFn = cpu.DisableInterrupts
	taskRegisterFn      = cpu.TaskRegister
	kernelStackFn       = gdt.ActiveKernelStack
	resetFn             = cpu.Reset

	errAllocFailed = &kernel.Error{Module: "gate", Message: "unable to allocate interrupt descriptor table"}
)

// Table owns the interrupt descriptor table and the handlers reachable
// through its gates.
type Table struct {
	addr         uintptr
	codeSelector uint16
	handlers     [gateCount]Handler
}

// NewTable allocates the descriptor table and points every gate at the
// ignore stub so that stray vectors are harmless.
func NewTable(allocFn AllocFn, codeSelector uint16) (*Table, *kernel.Error) {
	addr := allocFn(mem.Size(tableSize))
	if addr == 0 {
		return nil, errAllocFailed
	}

	t := &Table{addr: addr, codeSelector: codeSelector}
	ignore := NewDescriptor(ignoreStub, codeSelector, 0, InterruptGate)
	for vector := 0; vector < gateCount; vector++ {
		t.writeGate(InterruptNumber(vector), ignore)
	}

	return t, nil
}

// HandleInterrupt installs handler for the specified vector. Software
// interrupts issued with a CPL numerically greater than dpl raise a general
// protection fault instead of reaching the handler.
func (t *Table) HandleInterrupt(num InterruptNumber, dpl uint8, handler Handler) {
	t.handlers[num] = handler
	t.writeGate(num, NewDescriptor(stubAddress(num), t.codeSelector, dpl, InterruptGate))
}

// Load installs the table into IDTR.
func (t *Table) Load() {
	loadIDTFn(uint32(t.addr), tableSize-1)
}

// Gate returns the descriptor stored in memory for num.
func (t *Table) Gate(num InterruptNumber) Descriptor {
	return Descriptor(mem.ReadUint64(t.addr + uintptr(num)*descriptorSize))
}

// Address returns the physical address of the table.
func (t *Table) Address() uintptr {
	return t.addr
}

func (t *Table) writeGate(num InterruptNumber, desc Descriptor) {
	mem.WriteUint64(t.addr+uintptr(num)*descriptorSize, uint64(desc))
}

// Trap executes a software interrupt (int n) on behalf of the code running
// at the current privilege level. The call blocks until the execution
// context becomes available.
func (t *Table) Trap(num InterruptNumber, regs *Registers) {
	acquireContextFn()
	defer releaseContextFn()

	t.deliver(num, regs, softwareInterrupt, cplFn(), 0)
}

// Interrupt delivers a hardware interrupt. If the interrupt flag is clear the
// interrupt stays pending and Interrupt returns false. Otherwise inta is
// invoked to acknowledge the interrupt at the controller before the handler
// runs.
func (t *Table) Interrupt(num InterruptNumber, regs *Registers, inta func()) bool {
	acquireContextFn()
	defer releaseContextFn()

	if !interruptsEnabledFn() {
		return false
	}

	if inta != nil {
		inta()
	}
	t.deliver(num, regs, hardwareInterrupt, cplFn(), 0)
	notifyInterruptFn()
	return true
}

// Exception raises a processor exception for the instruction stream running
// outside of the execution context, e.g. a faulting memory access made by
// user code.
func (t *Table) Exception(num InterruptNumber, regs *Registers) {
	acquireContextFn()
	defer releaseContextFn()

	t.deliver(num, regs, exception, cplFn(), 0)
}

// Fault raises a processor exception from code that already owns the
// execution context, e.g. a handler that touches unmapped memory.
func (t *Table) Fault(num InterruptNumber, regs *Registers) {
	t.deliver(num, regs, exception, cplFn(), 0)
}

// deliver performs the gate walk for num. Faults detected while delivering
// are raised through raise which escalates nested faults.
func (t *Table) deliver(num InterruptNumber, regs *Registers, kind deliveryKind, cpl uint8, nested int) {
	base, limit := idtrFn()
	offset := uint32(num) * descriptorSize
	gateErrCode := offset | idtSelectorFlag

	if offset+descriptorSize-1 > uint32(limit) {
		t.raise(GPFException, gateErrCode, regs, cpl, nested)
		return
	}

	gate := Descriptor(mem.ReadUint64(uintptr(base + offset)))
	if !gate.Present() || (kind == softwareInterrupt && cpl > gate.DPL()) {
		t.raise(GPFException, gateErrCode, regs, cpl, nested)
		return
	}

	if cpl != 0 {
		if _, esp0, err := kernelStackFn(); err != nil || esp0 == 0 {
			// The handler for the fault runs on the current stack.
			t.raise(InvalidTSS, uint32(taskRegisterFn())&^3, regs, 0, nested)
			setCPLFn(cpl)
			return
		}
	}

	prevIF := interruptsEnabledFn()
	setCPLFn(0)
	if gate.Type() == InterruptGate {
		disableInterruptsFn()
	}

	if handler := t.handlerAt(gate.Offset()); handler != nil {
		handler(regs)
	}

	// iret
	setCPLFn(cpl)
	if prevIF {
		enableInterruptsFn()
	} else {
		disableInterruptsFn()
	}
}

// raise delivers a fault detected during the delivery of another trap. A
// fault while delivering a fault becomes a double fault; a fault while
// delivering a double fault resets the processor.
func (t *Table) raise(num InterruptNumber, errCode uint32, regs *Registers, cpl uint8, nested int) {
	faultRegs := *regs
	faultRegs.Info = errCode

	switch nested {
	case 0:
		t.deliver(num, &faultRegs, exception, cpl, 1)
	case 1:
		faultRegs.Info = 0
		t.deliver(DoubleFault, &faultRegs, exception, cpl, 2)
	default:
		kfmt.Printf("[gate] triple fault while delivering vector %d; resetting\n", uint8(num))
		resetFn()
	}
}

// handlerAt maps a gate offset back to the installed handler. Offsets that
// do not point at the start of a vector entry stub have no handler.
func (t *Table) handlerAt(offset uint32) Handler {
	if offset < entryStubBase || offset >= ignoreStub {
		return nil
	}

	rel := offset - entryStubBase
	if rel%entryStubSize != 0 {
		return nil
	}
	return t.handlers[rel/entryStubSize]
}

func stubAddress(num InterruptNumber) uint32 {
	return entryStubBase + uint32(num)*entryStubSize
}
