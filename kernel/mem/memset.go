package mem

// Memset sets size bytes at the given physical address to the supplied value.
func Memset(addr uintptr, value byte, size Size) {
	if size == 0 {
		return
	}

	var chunk [PageSize]byte
	if value != 0 {
		chunk[0] = value
		for index := 1; index < len(chunk); index *= 2 {
			copy(chunk[index:], chunk[:index])
		}
	}

	for size > 0 {
		n := Size(len(chunk)) - Size(addr&pageOffsetMask)
		if n > size {
			n = size
		}
		Write(addr, chunk[:n])
		addr += uintptr(n)
		size -= n
	}
}

// Memcopy copies size bytes from src to dst. Overlapping regions are handled
// like memmove.
func Memcopy(src, dst uintptr, size Size) {
	if size == 0 || src == dst {
		return
	}

	buf := make([]byte, size)
	Read(src, buf)
	Write(dst, buf)
}
