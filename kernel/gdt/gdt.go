// Package gdt builds the global descriptor table: flat kernel and user
// segments covering the memory ceiling plus the task state segment used for
// ring 3 to ring 0 stack switches.
package gdt

import (
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
)

// SegmentKind identifies a descriptor in the table.
type SegmentKind uint8

// The descriptors in table order.
const (
	NullSegment SegmentKind = iota
	KernelCode
	KernelData
	UserCode
	UserData
	TaskState
	segmentCount
)

// Access bytes for each descriptor.
const (
	accessKernelCode = uint8(0x9a)
	accessKernelData = uint8(0x92)
	accessUserCode   = uint8(0xfa)
	accessUserData   = uint8(0xf2)
	accessTSS        = uint8(0x89)
)

const (
	descriptorSize = 8
	tableSize      = uintptr(segmentCount) * descriptorSize
	rplMask        = 3
)

// AllocFn reserves size bytes of kernel memory and returns their address or
// 0 if the request cannot be satisfied.
type AllocFn func(size mem.Size) uintptr

var (
	// These functions are used by tests to intercept descriptor register
	// loads.
	loadGDTFn          = cpu.LoadGDT
	loadSegmentFn      = cpu.LoadSegment
	loadTaskRegisterFn = cpu.LoadTaskRegister
	gdtrFn             = cpu.GDTR
	taskRegisterFn     = cpu.TaskRegister

	errAllocFailed        = &kernel.Error{Module: "gdt", Message: "unable to allocate descriptor table"}
	errSelectorOutOfRange = &kernel.Error{Module: "gdt", Message: "selector exceeds descriptor table limit"}
	errNullSelector       = &kernel.Error{Module: "gdt", Message: "null selector loaded into segment register"}
	errSegmentNotPresent  = &kernel.Error{Module: "gdt", Message: "segment not present"}
	errSegmentType        = &kernel.Error{Module: "gdt", Message: "descriptor type does not match segment register"}
	errSegmentPrivilege   = &kernel.Error{Module: "gdt", Message: "descriptor privilege level does not match selector"}
	errNoTaskState        = &kernel.Error{Module: "gdt", Message: "task register does not reference an available TSS"}
)

// Table owns the descriptor table and the task state segment. Both live in
// kernel heap memory; the Go copies mirror what was written there.
type Table struct {
	addr    uintptr
	tssAddr uintptr

	entries [segmentCount]Descriptor
	tss     TaskStateSegment
}

// Build allocates the descriptor table and the TSS, encodes one descriptor
// per segment kind and writes the table to memory. Code and data segments
// start at 0 and extend up to memCeiling.
func Build(allocFn AllocFn, memCeiling mem.Size) (*Table, *kernel.Error) {
	addr := allocFn(mem.Size(tableSize) + mem.Size(tssSize))
	if addr == 0 {
		return nil, errAllocFailed
	}

	t := &Table{
		addr:    addr,
		tssAddr: addr + tableSize,
	}

	limit := uint32(memCeiling)
	t.entries = [segmentCount]Descriptor{
		NullSegment: 0,
		KernelCode:  NewDescriptor(0, limit, accessKernelCode),
		KernelData:  NewDescriptor(0, limit, accessKernelData),
		UserCode:    NewDescriptor(0, limit, accessUserCode),
		UserData:    NewDescriptor(0, limit, accessUserData),
		TaskState:   NewDescriptor(uint32(t.tssAddr), tssSize-1, accessTSS),
	}

	for kind, desc := range t.entries {
		mem.WriteUint64(t.addr+uintptr(kind)*descriptorSize, uint64(desc))
	}

	t.tss.SetKernelStack(t.Selector(KernelData), 0)
	t.writeTSS()

	return t, nil
}

// Activate loads the table into GDTR, reloads CS with the kernel code
// selector, the data segment registers with the kernel data selector and
// finally loads the task register. Every selector is checked against the
// descriptor it references; a failed check aborts activation.
func (t *Table) Activate() *kernel.Error {
	loadGDTFn(uint32(t.addr), t.Limit())

	if err := reloadSegment(cpu.CS, t.Selector(KernelCode)); err != nil {
		return err
	}

	for _, reg := range []cpu.SegmentRegister{cpu.DS, cpu.ES, cpu.FS, cpu.GS, cpu.SS} {
		if err := reloadSegment(reg, t.Selector(KernelData)); err != nil {
			return err
		}
	}

	tssSelector := t.Selector(TaskState)
	desc, err := ReadDescriptor(tssSelector)
	if err != nil {
		return err
	}
	if !desc.Present() || !desc.IsAvailableTSS() {
		return errNoTaskState
	}
	loadTaskRegisterFn(tssSelector)

	kfmt.Printf("[gdt] loaded %d descriptors at 0x%x; tss at 0x%x\n", uint32(segmentCount), t.addr, t.tssAddr)
	return nil
}

// Selector returns the selector for the given kind: the descriptor's byte
// offset in the table, with RPL 3 for the user segments.
func (t *Table) Selector(kind SegmentKind) uint16 {
	sel := uint16(kind) * descriptorSize
	if kind == UserCode || kind == UserData {
		sel |= rplMask
	}
	return sel
}

// Descriptor returns the encoded descriptor for the given kind.
func (t *Table) Descriptor(kind SegmentKind) Descriptor {
	return t.entries[kind]
}

// Address returns the physical address of the table.
func (t *Table) Address() uintptr { return t.addr }

// Limit returns the value loaded into the GDTR limit field.
func (t *Table) Limit() uint16 { return uint16(tableSize - 1) }

// SetKernelStack points the TSS ring 0 stack at esp0. It must be called
// before every transition to ring 3.
func (t *Table) SetKernelStack(esp0 uint32) {
	t.tss.SetKernelStack(t.Selector(KernelData), esp0)
	t.writeTSS()
}

// TaskState returns a copy of the TSS.
func (t *Table) TaskState() TaskStateSegment {
	return t.tss
}

func (t *Table) writeTSS() {
	for i, v := range t.tss {
		mem.WriteUint32(t.tssAddr+uintptr(i)*4, v)
	}
}

// reloadSegment performs the checks the processor applies when a selector
// is loaded into a segment register and then loads it.
func reloadSegment(reg cpu.SegmentRegister, selector uint16) *kernel.Error {
	desc, err := ReadDescriptor(selector)
	if err != nil {
		return err
	}

	switch {
	case !desc.Present():
		return errSegmentNotPresent
	case reg == cpu.CS && !desc.IsCode():
		return errSegmentType
	case reg != cpu.CS && !desc.IsWritableData():
		return errSegmentType
	case desc.DPL() != uint8(selector&rplMask):
		return errSegmentPrivilege
	}

	loadSegmentFn(reg, selector)
	return nil
}

// ReadDescriptor fetches the descriptor referenced by selector from the
// table currently loaded in GDTR.
func ReadDescriptor(selector uint16) (Descriptor, *kernel.Error) {
	index := selector &^ 7
	if index == 0 {
		return 0, errNullSelector
	}

	base, limit := gdtrFn()
	if uint32(index)+descriptorSize-1 > uint32(limit) {
		return 0, errSelectorOutOfRange
	}

	return Descriptor(mem.ReadUint64(uintptr(base) + uintptr(index))), nil
}

// ActiveKernelStack returns the ring 0 stack stored in the TSS referenced by
// the task register. The processor reads it when a trap is taken from ring 3.
func ActiveKernelStack() (ss0 uint16, esp0 uint32, err *kernel.Error) {
	desc, err := ReadDescriptor(taskRegisterFn())
	if err != nil {
		return 0, 0, err
	}
	if !desc.Present() || !desc.IsAvailableTSS() {
		return 0, 0, errNoTaskState
	}

	tssAddr := uintptr(desc.Base())
	return uint16(mem.ReadUint32(tssAddr + tssSS0*4)), mem.ReadUint32(tssAddr + tssESP0*4), nil
}
