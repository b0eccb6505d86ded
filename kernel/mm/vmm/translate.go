package vmm

import (
	"gravos/kernel"
	"gravos/kernel/cpu"
)

var (
	pagingEnabledFn = cpu.PagingEnabled
	activePDTFn     = cpu.ActivePDT
	lookupTLBFn     = cpu.LookupTLB
	fillTLBFn       = cpu.FillTLB
)

// Page fault error code bits pushed by the processor.
const (
	faultProtectionViolation = uint32(1 << 0)
	faultWrite               = uint32(1 << 1)
	faultUser                = uint32(1 << 2)
)

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (m *PageTableManager) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := effectiveEntry(m.pdtFrame.Address(), virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + (virtAddr & pageOffsetMask), nil
}

// Access performs the translation that the MMU carries out for a memory
// access through the active page directory. Cached translations are served
// from the TLB; misses walk the tables and fill the TLB. User accesses must
// hit pages that are user accessible at every level and writable for
// writes. Without paging, addresses translate to themselves.
func (m *PageTableManager) Access(virtAddr uintptr, user, write bool) (uintptr, *kernel.Error) {
	if !pagingEnabledFn() {
		return virtAddr, nil
	}

	entry, cached := lookupTLBFn(virtAddr)
	pte := pageTableEntry(entry)
	if !cached {
		var err *kernel.Error
		if pte, err = effectiveEntry(activePDTFn(), virtAddr); err != nil {
			return 0, err
		}
		fillTLBFn(virtAddr, uint32(pte))
	}

	if user && (!pte.HasFlags(FlagUserAccessible) || (write && !pte.HasFlags(FlagRW))) {
		return 0, ErrProtectionViolation
	}

	return pte.Frame().Address() + (virtAddr & pageOffsetMask), nil
}

// PageFaultErrorCode returns the error code that the processor reports for
// an access that failed with err.
func PageFaultErrorCode(err *kernel.Error, user, write bool) uint32 {
	var code uint32
	if err == ErrProtectionViolation {
		code |= faultProtectionViolation
	}
	if write {
		code |= faultWrite
	}
	if user {
		code |= faultUser
	}
	return code
}

// effectiveEntry walks the tables rooted at pdtAddr and returns the final
// entry for virtAddr. The user and rw flags of the returned entry are the
// intersection of the flags at every level.
func effectiveEntry(pdtAddr, virtAddr uintptr) (pageTableEntry, *kernel.Error) {
	var (
		err   *kernel.Error
		entry pageTableEntry
		perms = FlagRW | FlagUserAccessible
	)

	walk(pdtAddr, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		perms &= PageTableEntryFlag(*pte)
		entry = *pte
		return true
	})

	if err != nil {
		return 0, err
	}

	entry.ClearFlags(FlagRW | FlagUserAccessible)
	entry.SetFlags(perms)
	return entry, nil
}
