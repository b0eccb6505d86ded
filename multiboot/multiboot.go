// Package multiboot parses the multiboot (v1) information block that the
// boot loader places in physical memory before jumping to the kernel.
package multiboot

import (
	"strings"

	"gravos/kernel/mem"
)

// BootloaderMagic is passed in EAX by a compliant boot loader.
const BootloaderMagic = uint32(0x2badb002)

var (
	infoData  uintptr
	cmdLineKV map[string]string
)

// InfoFlag marks the info block fields that the boot loader has populated.
type InfoFlag uint32

// The info block flags used by the kernel.
const (
	FlagMemoryBounds InfoFlag = 1 << 0
	FlagBootDevice   InfoFlag = 1 << 1
	FlagCmdLine      InfoFlag = 1 << 2
	FlagModules      InfoFlag = 1 << 3
	FlagMemoryMap    InfoFlag = 1 << 6
	FlagFramebuffer  InfoFlag = 1 << 12
)

// Field offsets inside the info block.
const (
	offFlags             = 0
	offMemLower          = 4
	offMemUpper          = 8
	offCmdLine           = 16
	offMmapLength        = 44
	offMmapAddr          = 48
	offFramebufferAddr   = 88
	offFramebufferPitch  = 96
	offFramebufferWidth  = 100
	offFramebufferHeight = 104
	offFramebufferBpp    = 108
	offFramebufferType   = 109

	// InfoSize is the size of the info block up to and including the
	// framebuffer fields.
	InfoSize = 110

	// maxCmdLineLen bounds the scan for the command line terminator.
	maxCmdLineLen = 4096
)

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed specifies a 256-color palette.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// Size returns the number of bytes spanned by the framebuffer.
func (i *FramebufferInfo) Size() mem.Size {
	return mem.Size(i.Height) * mem.Size(i.Pitch)
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
	cmdLineKV = nil
}

// Flags returns the populated field flags of the info block.
func Flags() InfoFlag {
	if infoData == 0 {
		return 0
	}
	return InfoFlag(mem.ReadUint32(infoData + offFlags))
}

// MemoryBounds returns the amount of lower and upper memory in kilobytes as
// reported by the boot loader. Both values are 0 when not available.
func MemoryBounds() (lowerKb, upperKb uint32) {
	if Flags()&FlagMemoryBounds == 0 {
		return 0, 0
	}
	return mem.ReadUint32(infoData + offMemLower), mem.ReadUint32(infoData + offMemUpper)
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	if Flags()&FlagMemoryMap == 0 {
		return
	}

	var (
		curPtr = uintptr(mem.ReadUint32(infoData + offMmapAddr))
		endPtr = curPtr + uintptr(mem.ReadUint32(infoData+offMmapLength))
		entry  MemoryMapEntry
	)

	// Each entry is prefixed by its size which does not include the size
	// field itself.
	for curPtr < endPtr {
		entrySize := uintptr(mem.ReadUint32(curPtr))
		entry.PhysAddress = mem.ReadUint64(curPtr + 4)
		entry.Length = mem.ReadUint64(curPtr + 12)
		entry.Type = MemoryEntryType(mem.ReadUint32(curPtr + 20))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}

		curPtr += entrySize + 4
	}
}

// GetFramebufferInfo returns information about the framebuffer initialized by the
// bootloader. This function returns nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	if Flags()&FlagFramebuffer == 0 {
		return nil
	}

	return &FramebufferInfo{
		PhysAddr: mem.ReadUint64(infoData + offFramebufferAddr),
		Pitch:    mem.ReadUint32(infoData + offFramebufferPitch),
		Width:    mem.ReadUint32(infoData + offFramebufferWidth),
		Height:   mem.ReadUint32(infoData + offFramebufferHeight),
		Bpp:      mem.ReadUint8(infoData + offFramebufferBpp),
		Type:     FramebufferType(mem.ReadUint8(infoData + offFramebufferType)),
	}
}

// GetBootCmdLine returns the command line key-value pairs passed to the
// kernel.
func GetBootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	cmdLineKV = make(map[string]string)
	if Flags()&FlagCmdLine == 0 {
		return cmdLineKV
	}

	// The command line is a C-style NULL-terminated string
	var (
		cmdLine []byte
		curPtr  = uintptr(mem.ReadUint32(infoData + offCmdLine))
	)
	for ; len(cmdLine) < maxCmdLineLen; curPtr++ {
		ch := mem.ReadUint8(curPtr)
		if ch == 0 {
			break
		}
		cmdLine = append(cmdLine, ch)
	}

	for _, pair := range strings.Fields(string(cmdLine)) {
		kv := strings.Split(pair, "=")
		switch len(kv) {
		case 2: // foo=bar
			cmdLineKV[kv[0]] = kv[1]
		case 1: // nofoo
			cmdLineKV[kv[0]] = kv[0]
		}
	}

	return cmdLineKV
}
