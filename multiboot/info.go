package multiboot

import "gravos/kernel/mem"

// Info describes the contents of an info block. Boot loaders (and the
// emulator that stands in for one) use Write to place it in memory.
type Info struct {
	LowerMemKb, UpperMemKb uint32
	CmdLine                string
	MemoryMap              []MemoryMapEntry
	Framebuffer            *FramebufferInfo
}

// mmapEntrySize is the size of an encoded memory map entry, excluding its
// size prefix.
const mmapEntrySize = 20

// Write encodes the info block at addr. The command line and the memory map
// are stored right after the block. It returns the address of the first
// byte following the encoded data.
func (i *Info) Write(addr uintptr) uintptr {
	mem.Memset(addr, 0, InfoSize)

	var (
		flags  = FlagMemoryBounds
		curPtr = mem.AlignUp(addr+InfoSize, 4)
	)

	mem.WriteUint32(addr+offMemLower, i.LowerMemKb)
	mem.WriteUint32(addr+offMemUpper, i.UpperMemKb)

	if i.CmdLine != "" {
		flags |= FlagCmdLine
		mem.WriteUint32(addr+offCmdLine, uint32(curPtr))
		mem.Write(curPtr, append([]byte(i.CmdLine), 0))
		curPtr = mem.AlignUp(curPtr+uintptr(len(i.CmdLine)+1), 4)
	}

	if len(i.MemoryMap) != 0 {
		flags |= FlagMemoryMap
		mem.WriteUint32(addr+offMmapAddr, uint32(curPtr))
		mem.WriteUint32(addr+offMmapLength, uint32(len(i.MemoryMap)*(mmapEntrySize+4)))
		for _, entry := range i.MemoryMap {
			mem.WriteUint32(curPtr, mmapEntrySize)
			mem.WriteUint64(curPtr+4, entry.PhysAddress)
			mem.WriteUint64(curPtr+12, entry.Length)
			mem.WriteUint32(curPtr+20, uint32(entry.Type))
			curPtr += mmapEntrySize + 4
		}
	}

	if fb := i.Framebuffer; fb != nil {
		flags |= FlagFramebuffer
		mem.WriteUint64(addr+offFramebufferAddr, fb.PhysAddr)
		mem.WriteUint32(addr+offFramebufferPitch, fb.Pitch)
		mem.WriteUint32(addr+offFramebufferWidth, fb.Width)
		mem.WriteUint32(addr+offFramebufferHeight, fb.Height)
		mem.WriteUint8(addr+offFramebufferBpp, fb.Bpp)
		mem.WriteUint8(addr+offFramebufferType, uint8(fb.Type))
	}

	mem.WriteUint32(addr+offFlags, uint32(flags))
	return curPtr
}
