package gdt

// Descriptor is an 8-byte segment descriptor in the layout consumed by the
// processor:
//
//	bits  0-15: limit 0-15
//	bits 16-39: base 0-23
//	bits 40-47: access byte
//	bits 48-51: limit 16-19
//	bits 52-55: flags (granularity, default operand size)
//	bits 56-63: base 24-31
type Descriptor uint64

// Access byte bits.
const (
	accessPresent    = uint8(1 << 7)
	accessDPLShift   = 5
	accessNonSystem  = uint8(1 << 4)
	accessExecutable = uint8(1 << 3)
	accessRW         = uint8(1 << 1)
	accessTypeMask   = uint8(0x1f)
)

// Flag nibble values.
const (
	flagSize32      = uint8(0x40)
	flagGranularity = uint8(0x80)
)

// byteGranularLimit is the largest limit that is encoded without page
// granularity.
const byteGranularLimit = 65536

// NewDescriptor encodes a descriptor. Limits up to 64 KB are stored with
// byte granularity. Larger limits switch to 4 KB granularity; unless the
// low 12 bits of the limit are all set, the encoded limit is rounded down
// to the last page that fits entirely below it.
func NewDescriptor(base, limit uint32, access uint8) Descriptor {
	flags := flagSize32
	if limit > byteGranularLimit {
		if limit&0xfff != 0xfff {
			limit = (limit >> 12) - 1
		} else {
			limit >>= 12
		}
		flags |= flagGranularity
	}

	return Descriptor(uint64(limit&0xffff) |
		uint64(base&0xffffff)<<16 |
		uint64(access)<<40 |
		uint64((limit>>16)&0xf)<<48 |
		uint64(flags)<<48 |
		uint64(base>>24)<<56)
}

// Base returns the segment base address.
func (d Descriptor) Base() uint32 {
	return uint32((d>>16)&0xffffff) | uint32(d>>56)<<24
}

// RawLimit returns the 20-bit limit field as stored in the descriptor.
func (d Descriptor) RawLimit() uint32 {
	return uint32(d&0xffff) | uint32((d>>48)&0xf)<<16
}

// Limit returns the offset of the last addressable byte in the segment,
// applying the granularity flag.
func (d Descriptor) Limit() uint32 {
	limit := d.RawLimit()
	if d.Granular() {
		limit = limit<<12 | 0xfff
	}
	return limit
}

// Access returns the access byte.
func (d Descriptor) Access() uint8 {
	return uint8(d >> 40)
}

// Flags returns the flag nibble in the upper half of a byte.
func (d Descriptor) Flags() uint8 {
	return uint8(d>>48) & 0xf0
}

// Granular returns true if the limit is scaled by 4 KB.
func (d Descriptor) Granular() bool {
	return d.Flags()&flagGranularity != 0
}

// Present returns true if the present bit is set.
func (d Descriptor) Present() bool {
	return d.Access()&accessPresent != 0
}

// DPL returns the descriptor privilege level.
func (d Descriptor) DPL() uint8 {
	return (d.Access() >> accessDPLShift) & 3
}

// IsCode returns true for code segment descriptors.
func (d Descriptor) IsCode() bool {
	return d.Access()&(accessNonSystem|accessExecutable) == accessNonSystem|accessExecutable
}

// IsWritableData returns true for writable data segment descriptors.
func (d Descriptor) IsWritableData() bool {
	return d.Access()&(accessNonSystem|accessExecutable|accessRW) == accessNonSystem|accessRW
}

// IsAvailableTSS returns true for an available 32-bit task state segment.
func (d Descriptor) IsAvailableTSS() bool {
	return d.Access()&accessTypeMask == accessTSS&accessTypeMask
}
