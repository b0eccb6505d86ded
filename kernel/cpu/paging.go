package cpu

// ReadCR2 returns the linear address that caused the last page fault.
func ReadCR2() uint32 {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.cr2
}

// WriteCR2 latches the linear address of a faulting memory access. It is
// invoked by the MMU before a page fault is raised.
func WriteCR2(addr uint32) {
	stateLock.Acquire()
	state.cr2 = addr
	stateLock.Release()
}

// EnablePaging sets the paging bit in CR0. The page directory must already be
// loaded via SwitchPDT.
func EnablePaging() {
	stateLock.Acquire()
	state.cr0 |= cr0Paging
	stateLock.Release()
}

// PagingEnabled returns true if the paging bit in CR0 is set.
func PagingEnabled() bool {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.cr0&cr0Paging != 0
}

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr) {
	stateLock.Acquire()
	state.cr3 = uint32(pdtPhysAddr) &^ 0xfff
	state.tlb = make(map[uintptr]uint32)
	stateLock.Release()
}

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr {
	stateLock.Acquire()
	defer stateLock.Release()
	return uintptr(state.cr3)
}

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr) {
	stateLock.Acquire()
	delete(state.tlb, virtAddr&^0xfff)
	stateLock.Release()
}

// LookupTLB returns the cached page table entry for the page that contains
// virtAddr.
func LookupTLB(virtAddr uintptr) (uint32, bool) {
	stateLock.Acquire()
	defer stateLock.Release()
	entry, ok := state.tlb[virtAddr&^0xfff]
	return entry, ok
}

// FillTLB caches the page table entry for the page that contains virtAddr.
func FillTLB(virtAddr uintptr, entry uint32) {
	stateLock.Acquire()
	state.tlb[virtAddr&^0xfff] = entry
	stateLock.Release()
}
