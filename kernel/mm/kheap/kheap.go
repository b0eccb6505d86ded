// Package kheap implements the kernel heap: a bump allocator over a fixed
// window of physical memory that serves every dynamic allocation the kernel
// makes before (and instead of) a general purpose allocator.
package kheap

import (
	"gravos/kernel"
	"gravos/kernel/mem"
	"gravos/kernel/mm"
)

// allocAlignment is the minimum alignment of every allocation.
const allocAlignment = 4

var errHeapExhausted = &kernel.Error{Module: "kheap", Message: "kernel heap exhausted"}

// Heap hands out memory from the window [start, end) by advancing a cursor.
// Allocations are never reclaimed.
type Heap struct {
	start  uintptr
	cursor uintptr
	end    uintptr
}

// Init fixes the allocatable window and resets the cursor to its start.
func (h *Heap) Init(start uintptr, size mem.Size) {
	h.start = start
	h.cursor = start
	h.end = start + uintptr(size)
}

// Allocate reserves size bytes and returns the address of the reserved
// block. The block starts at a 4-byte boundary and its size is rounded up to
// a multiple of 4. Allocate returns 0 if the block would extend past the
// end of the window; the cursor is left untouched in that case.
func (h *Heap) Allocate(size mem.Size) uintptr {
	return h.AllocateAligned(size, allocAlignment)
}

// AllocateAligned behaves like Allocate but aligns the returned address to
// align bytes. Alignment values smaller than 4 are raised to 4.
func (h *Heap) AllocateAligned(size mem.Size, align uintptr) uintptr {
	if align < allocAlignment {
		align = allocAlignment
	}

	addr := mem.AlignUp(h.cursor, align)
	next := uint64(addr) + uint64(mem.AlignUp(uintptr(size), allocAlignment))
	if addr < h.cursor || next > uint64(h.end) {
		return 0
	}

	h.cursor = uintptr(next)
	return addr
}

// Release is a no-op; the kernel heap never reclaims memory.
func (h *Heap) Release(_ uintptr) {}

// AllocFrame reserves a zeroed, page-aligned physical frame from the heap.
// Its signature matches mm.FrameAllocatorFn.
func (h *Heap) AllocFrame() (mm.Frame, *kernel.Error) {
	addr := h.AllocateAligned(mem.PageSize, uintptr(mem.PageSize))
	if addr == 0 {
		return mm.InvalidFrame, errHeapExhausted
	}

	mem.Memset(addr, 0, mem.PageSize)
	return mm.FrameFromAddress(addr), nil
}

// Start returns the first address of the heap window.
func (h *Heap) Start() uintptr { return h.start }

// Cursor returns the address that the next allocation will start from
// (before alignment).
func (h *Heap) Cursor() uintptr { return h.cursor }

// Used returns the number of bytes handed out so far, including padding.
func (h *Heap) Used() mem.Size { return mem.Size(h.cursor - h.start) }

// Remaining returns the number of bytes left in the window.
func (h *Heap) Remaining() mem.Size { return mem.Size(h.end - h.cursor) }
