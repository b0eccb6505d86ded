package gate

// Descriptor is an 8-byte interrupt gate in the layout consumed by the
// processor:
//
//	bits  0-15: handler offset 0-15
//	bits 16-31: code segment selector
//	bits 32-39: reserved
//	bits 40-47: access byte (present, DPL, gate type)
//	bits 48-63: handler offset 16-31
type Descriptor uint64

// Gate types.
const (
	// InterruptGate clears IF while the handler runs.
	InterruptGate = uint8(0xe)

	// TrapGate leaves IF untouched.
	TrapGate = uint8(0xf)
)

const gatePresent = uint8(0x80)

// NewDescriptor encodes a present gate pointing at offset within the
// segment referenced by selector.
func NewDescriptor(offset uint32, selector uint16, dpl, gateType uint8) Descriptor {
	access := gatePresent | (dpl&3)<<5 | gateType&0xf
	return Descriptor(uint64(offset&0xffff) |
		uint64(selector)<<16 |
		uint64(access)<<40 |
		uint64(offset>>16)<<48)
}

// Offset returns the handler offset.
func (d Descriptor) Offset() uint32 {
	return uint32(d&0xffff) | uint32(d>>48)<<16
}

// Selector returns the code segment selector.
func (d Descriptor) Selector() uint16 {
	return uint16(d >> 16)
}

// Access returns the access byte.
func (d Descriptor) Access() uint8 {
	return uint8(d >> 40)
}

// Present returns true if the present bit is set.
func (d Descriptor) Present() bool {
	return d.Access()&gatePresent != 0
}

// DPL returns the minimum privilege level required to invoke the gate with
// a software interrupt.
func (d Descriptor) DPL() uint8 {
	return (d.Access() >> 5) & 3
}

// Type returns the gate type.
func (d Descriptor) Type() uint8 {
	return d.Access() & 0xf
}
