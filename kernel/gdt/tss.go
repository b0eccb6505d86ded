package gdt

// TaskStateSegment mirrors the 104-byte 32-bit TSS. The kernel only uses
// the ring 0 stack fields which the processor loads when a trap raises the
// privilege level.
type TaskStateSegment [26]uint32

const (
	tssESP0 = 1
	tssSS0  = 2

	// tssSize is the size of the TSS in bytes.
	tssSize = uint32(len(TaskStateSegment{}) * 4)
)

// KernelStack returns the ring 0 stack selector and pointer.
func (t *TaskStateSegment) KernelStack() (ss0 uint16, esp0 uint32) {
	return uint16(t[tssSS0]), t[tssESP0]
}

// SetKernelStack updates the ring 0 stack selector and pointer.
func (t *TaskStateSegment) SetKernelStack(ss0 uint16, esp0 uint32) {
	t[tssSS0] = uint32(ss0)
	t[tssESP0] = esp0
}
