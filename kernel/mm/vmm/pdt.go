// Package vmm builds and maintains the two-level page directory that turns
// on paging. The first 128 MB of physical memory are identity mapped with
// user access; additional ranges (e.g. the framebuffer) are mapped on demand.
package vmm

import (
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
	"gravos/kernel/mm"
)

var (
	// switchPDTFn, enablePagingFn and flushTLBEntryFn are used by tests
	// to observe the control register updates made by this package.
	switchPDTFn     = cpu.SwitchPDT
	enablePagingFn  = cpu.EnablePaging
	flushTLBEntryFn = cpu.FlushTLBEntry
)

// PageTableManager owns the page directory and every page table reachable
// from it. Tables are allocated lazily and never freed.
type PageTableManager struct {
	pdtFrame mm.Frame
	allocFn  mm.FrameAllocatorFn
}

// NewPageTableManager returns a manager that obtains page-aligned frames for
// its tables from allocFn.
func NewPageTableManager(allocFn mm.FrameAllocatorFn) *PageTableManager {
	return &PageTableManager{
		pdtFrame: mm.InvalidFrame,
		allocFn:  allocFn,
	}
}

// Init allocates the page directory, marks every slot as not present,
// identity maps the first identityMappedTables*4 MB of physical memory,
// loads the directory into CR3 and enables paging.
func (m *PageTableManager) Init() *kernel.Error {
	pdtFrame, err := m.allocFn()
	if err != nil {
		return err
	}
	m.pdtFrame = pdtFrame
	initTable(pdtFrame.Address(), notPresentEntry, 0)

	for slot := uintptr(0); slot < identityMappedTables; slot++ {
		tableFrame, err := m.allocFn()
		if err != nil {
			return err
		}

		firstPage := pageTableEntry(slot<<pageLevelShifts[0]) | pageTableEntry(defaultFlags)
		initTable(tableFrame.Address(), firstPage, uint32(mem.PageSize))

		pde := pageTableEntry(0)
		pde.SetFrame(tableFrame)
		pde.SetFlags(defaultFlags)
		writeEntryFn(pdtFrame.Address()+(slot<<mem.PointerShift), pde)
	}

	kfmt.Printf("[vmm] identity mapped %dMb; page directory at 0x%x\n",
		uint32(identityMappedTables<<pageLevelShifts[0]>>20), pdtFrame.Address())

	m.Activate()
	enablePagingFn()
	return nil
}

// Activate loads this page directory into CR3 and flushes the TLB.
func (m *PageTableManager) Activate() {
	switchPDTFn(m.pdtFrame.Address())
}

// DirectoryAddress returns the physical address of the page directory.
func (m *PageTableManager) DirectoryAddress() uintptr {
	return m.pdtFrame.Address()
}
