package mem

import (
	"encoding/binary"

	"gravos/kernel/sync"
)

// Physical memory is backed by a sparse set of page-sized frames that are
// populated on first write. Reads from frames that were never written
// return zero, just like freshly cleared RAM.
var (
	ramLock sync.Spinlock
	ram     = make(map[uintptr]*[PageSize]byte)
)

const pageOffsetMask = uintptr(PageSize - 1)

// frameFor returns the backing store for the frame containing addr. If alloc
// is false and the frame has never been written, frameFor returns nil.
func frameFor(addr uintptr, alloc bool) *[PageSize]byte {
	base := addr &^ pageOffsetMask
	frame := ram[base]
	if frame == nil && alloc {
		frame = new([PageSize]byte)
		ram[base] = frame
	}
	return frame
}

// Read copies len(p) bytes starting at physical address addr into p.
func Read(addr uintptr, p []byte) {
	ramLock.Acquire()
	defer ramLock.Release()

	for len(p) > 0 {
		offset := addr & pageOffsetMask
		n := int(uintptr(PageSize) - offset)
		if n > len(p) {
			n = len(p)
		}

		if frame := frameFor(addr, false); frame != nil {
			copy(p[:n], frame[offset:])
		} else {
			for i := 0; i < n; i++ {
				p[i] = 0
			}
		}

		p = p[n:]
		addr += uintptr(n)
	}
}

// Write copies p to physical memory starting at addr.
func Write(addr uintptr, p []byte) {
	ramLock.Acquire()
	defer ramLock.Release()

	for len(p) > 0 {
		offset := addr & pageOffsetMask
		n := copy(frameFor(addr, true)[offset:], p)
		p = p[n:]
		addr += uintptr(n)
	}
}

// ReadUint8 returns the byte stored at addr.
func ReadUint8(addr uintptr) uint8 {
	var buf [1]byte
	Read(addr, buf[:])
	return buf[0]
}

// WriteUint8 stores a byte at addr.
func WriteUint8(addr uintptr, v uint8) {
	Write(addr, []byte{v})
}

// ReadUint16 returns the little-endian word stored at addr.
func ReadUint16(addr uintptr) uint16 {
	var buf [2]byte
	Read(addr, buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

// WriteUint16 stores a little-endian word at addr.
func WriteUint16(addr uintptr, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	Write(addr, buf[:])
}

// ReadUint32 returns the little-endian double word stored at addr.
func ReadUint32(addr uintptr) uint32 {
	var buf [4]byte
	Read(addr, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// WriteUint32 stores a little-endian double word at addr.
func WriteUint32(addr uintptr, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	Write(addr, buf[:])
}

// ReadUint64 returns the little-endian quad word stored at addr.
func ReadUint64(addr uintptr) uint64 {
	var buf [8]byte
	Read(addr, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// WriteUint64 stores a little-endian quad word at addr.
func WriteUint64(addr uintptr, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	Write(addr, buf[:])
}

// Reset discards the contents of physical memory.
func Reset() {
	ramLock.Acquire()
	ram = make(map[uintptr]*[PageSize]byte)
	ramLock.Release()
}

// PopulatedFrames returns the number of frames that have been written to.
func PopulatedFrames() int {
	ramLock.Acquire()
	defer ramLock.Release()
	return len(ram)
}
