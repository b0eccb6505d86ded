package vmm

import "gravos/kernel/mem"

var (
	// readEntryFn and writeEntryFn move page table entries between
	// physical memory and the walker. They are used by tests to observe
	// table updates.
	readEntryFn = func(entryAddr uintptr) pageTableEntry {
		return pageTableEntry(mem.ReadUint32(entryAddr))
	}
	writeEntryFn = func(entryAddr uintptr, pte pageTableEntry) {
		mem.WriteUint32(entryAddr, uint32(pte))
	}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. Changes made to the entry are written back to the table. If
// the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the page directory located at pdtAddr. It calls the supplied walkFn with
// the page table entry that corresponds to each page table level.
func walk(pdtAddr, virtAddr uintptr, walkFn pageTableWalker) {
	var (
		tableAddr  = pdtAddr
		entryAddr  uintptr
		entryIndex uintptr
	)

	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		pte := readEntryFn(entryAddr)
		orig := pte
		ok := walkFn(level, &pte)
		if pte != orig {
			writeEntryFn(entryAddr, pte)
		}

		if !ok {
			return
		}

		tableAddr = pte.Frame().Address()
	}
}

// initTable fills the 1024 entries of the table at tableAddr. Entry i is set
// to first + i*step which allows the same helper to clear a table and to
// build an identity mapping.
func initTable(tableAddr uintptr, first pageTableEntry, step uint32) {
	var buf [entriesPerTable << mem.PointerShift]byte

	entry := uint32(first)
	for i := 0; i < len(buf); i += 1 << mem.PointerShift {
		buf[i] = byte(entry)
		buf[i+1] = byte(entry >> 8)
		buf[i+2] = byte(entry >> 16)
		buf[i+3] = byte(entry >> 24)
		entry += step
	}

	mem.Write(tableAddr, buf[:])
}
