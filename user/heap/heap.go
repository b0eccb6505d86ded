// Package heap implements the first-fit allocator used by user programs. The
// allocator keeps a singly linked list of blocks inside the memory obtained
// through the sbrk system call. Each block starts with a header:
//
//	+0 payload size (multiple of 8)
//	+4 free flag
//	+8 address of the next block header or 0
//
// Blocks are never split or coalesced and memory is never returned to the
// kernel.
package heap

const (
	headerSize = uint32(12)
	alignment  = uint32(8)

	offSize = uint32(0)
	offFree = uint32(4)
	offNext = uint32(8)
)

// Memory provides access to the user address space the heap lives in.
type Memory interface {
	ReadUint32(addr uint32) uint32
	WriteUint32(addr, val uint32)

	// Copy copies size bytes from src to dst.
	Copy(dst, src, size uint32)

	// Set fills size bytes starting at addr with val.
	Set(addr uint32, val uint8, size uint32)
}

// SbrkFn grows the program break by incr bytes and returns the previous
// break or 0 if the request cannot be satisfied.
type SbrkFn func(incr uint32) uint32

// Heap is a first-fit allocator over a Memory.
type Heap struct {
	mem  Memory
	sbrk SbrkFn

	head uint32
	tail uint32
}

// New returns an empty heap that requests memory through sbrk.
func New(mem Memory, sbrk SbrkFn) *Heap {
	return &Heap{mem: mem, sbrk: sbrk}
}

// Allocate returns the address of a block of at least size bytes or 0 if
// size is 0 or the program break cannot be extended.
func (h *Heap) Allocate(size uint32) uint32 {
	if size == 0 {
		return 0
	}

	// Requests that overflow while being aligned can never be satisfied.
	aligned := (size + alignment - 1) &^ (alignment - 1)
	if aligned < size {
		return 0
	}

	for block := h.head; block != 0; block = h.mem.ReadUint32(block + offNext) {
		if h.mem.ReadUint32(block+offFree) != 0 && h.mem.ReadUint32(block+offSize) >= aligned {
			h.mem.WriteUint32(block+offFree, 0)
			return block + headerSize
		}
	}

	if aligned > ^uint32(0)-headerSize {
		return 0
	}

	block := h.sbrk(headerSize + aligned)
	if block == 0 {
		return 0
	}

	h.mem.WriteUint32(block+offSize, aligned)
	h.mem.WriteUint32(block+offFree, 0)
	h.mem.WriteUint32(block+offNext, 0)

	if h.tail != 0 {
		h.mem.WriteUint32(h.tail+offNext, block)
	} else {
		h.head = block
	}
	h.tail = block

	return block + headerSize
}

// Release marks the block at ptr as free so a later allocation can reuse
// it. Releasing 0 is a no-op.
func (h *Heap) Release(ptr uint32) {
	if ptr == 0 {
		return
	}
	h.mem.WriteUint32(ptr-headerSize+offFree, 1)
}

// Reallocate resizes the block at ptr. Blocks that are already large enough
// are returned as is; otherwise the contents are moved to a new block and
// the old one is released.
func (h *Heap) Reallocate(ptr, size uint32) uint32 {
	switch {
	case ptr == 0:
		return h.Allocate(size)
	case size == 0:
		h.Release(ptr)
		return 0
	}

	oldSize := h.BlockSize(ptr)
	if oldSize >= size {
		return ptr
	}

	newPtr := h.Allocate(size)
	if newPtr == 0 {
		return 0
	}

	h.mem.Copy(newPtr, ptr, oldSize)
	h.Release(ptr)
	return newPtr
}

// AllocateZeroed allocates room for count elements of size bytes each and
// clears it.
func (h *Heap) AllocateZeroed(count, size uint32) uint32 {
	total := uint64(count) * uint64(size)
	if total > uint64(^uint32(0)) {
		return 0
	}

	ptr := h.Allocate(uint32(total))
	if ptr != 0 {
		h.mem.Set(ptr, 0, uint32(total))
	}
	return ptr
}

// BlockSize returns the payload size recorded for the block at ptr.
func (h *Heap) BlockSize(ptr uint32) uint32 {
	return h.mem.ReadUint32(ptr - headerSize + offSize)
}
