package vmm

import (
	"gravos/kernel"
	"gravos/kernel/mem"
	"gravos/kernel/mm"
)

// MapMemory establishes a mapping between the page containing virtAddr and
// the frame containing physAddr. If the directory slot for virtAddr has no
// page table yet, a new one is allocated and all of its entries are marked
// as not present. Existing mappings are overwritten and the TLB entry for
// virtAddr is invalidated.
func (m *PageTableManager) MapMemory(virtAddr, physAddr uintptr) *kernel.Error {
	var err *kernel.Error

	walk(m.pdtFrame.Address(), virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(mm.FrameFromAddress(physAddr))
			pte.SetFlags(defaultFlags)
			flushTLBEntryFn(virtAddr)
			return true
		}

		if pte.HasFlags(FlagPresent | FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and mark all of its entries as not
		// present.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame mm.Frame
			newTableFrame, err = m.allocFn()
			if err != nil {
				return false
			}

			initTable(newTableFrame.Address(), notPresentEntry, 0)
			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(defaultFlags)
		}

		return true
	})

	return err
}

// MapRegion identity maps the physical memory region [physAddr, physAddr +
// size). The region is extended to page boundaries.
func (m *PageTableManager) MapRegion(physAddr uintptr, size mem.Size) *kernel.Error {
	start := physAddr &^ pageOffsetMask
	pageCount := (mem.Size(physAddr-start) + size).Pages()

	for page := mm.PageFromAddress(start); pageCount > 0; pageCount, page = pageCount-1, page+1 {
		if err := m.MapMemory(page.Address(), page.Address()); err != nil {
			return err
		}
	}

	return nil
}
