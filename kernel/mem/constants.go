package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uint32)) on the 32-bit
	// target. Page table and descriptor table offsets are scaled by it.
	PointerShift = 2

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// IdentityMapCeiling is the amount of physical memory that is identity
	// mapped when paging is enabled. The user program break may never grow
	// past it.
	IdentityMapCeiling = 128 * Mb
)
