package vmm

const (
	// pageLevels indicates the number of page levels supported by the
	// 32-bit x86 MMU without PAE.
	pageLevels = 2

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. Bits 12-31 contain the
	// physical memory address.
	ptePhysPageMask = uintptr(0xfffff000)

	// pageOffsetMask extracts the offset within a page from an address.
	pageOffsetMask = uintptr(0xfff)

	// entriesPerTable is the number of entries in the page directory and in
	// each page table.
	entriesPerTable = 1 << 10

	// identityMappedTables is the number of page directory slots that Init
	// identity maps; each slot covers 4 MB.
	identityMappedTables = 32

	// notPresentEntry is the value stored in unused directory and table
	// slots: supervisor, read-write and not present.
	notPresentEntry = pageTableEntry(FlagRW)

	// defaultFlags is applied to every table and page mapped by this
	// package.
	defaultFlags = FlagPresent | FlagRW | FlagUserAccessible
)

var (
	// pageLevelBits defines the number of virtual address bits that correspond to each
	// page level. Each level uses 10 bits which amounts to 1024 entries per table.
	pageLevelBits = [pageLevels]uint8{
		10,
		10,
	}

	// pageLevelShifts defines the shift required to access each page table component
	// of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		22,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set in a directory entry that maps a 4 MB page.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal
)
