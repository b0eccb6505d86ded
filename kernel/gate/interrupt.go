package gate

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug occurs when a debug trap condition is met.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = InterruptNumber(2)

	// Breakpoint occurs when the INT3 instruction is executed.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when the INTO instruction is executed while the
	// overflow flag is set.
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an FPU
	// instruction while no FPU is available.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an exception occurs while the processor is
	// delivering another exception.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when a privilege level change references an
	// invalid task state segment or an unusable ring 0 stack.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when a segment register is loaded with a
	// selector whose descriptor is not present.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when the stack base/limit (set in GDT)
	// checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory or page table entry
	// is not present or when a privilege and/or RW protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs when an unmasked x87 FP exception is
	// pending.
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs.
	SIMDFloatingPointException = InterruptNumber(19)

	// ExceptionCount is the number of vectors reserved for processor
	// exceptions.
	ExceptionCount = 32
)

// Hardware interrupt vectors after the interrupt controllers are remapped.
const (
	// IRQBase is the vector of the first master controller line.
	IRQBase = InterruptNumber(0x20)

	// IRQSlaveBase is the vector of the first slave controller line.
	IRQSlaveBase = InterruptNumber(0x28)

	// IRQCount is the number of hardware interrupt lines.
	IRQCount = 16

	// IRQTimer is raised by the programmable interval timer.
	IRQTimer = IRQBase + 0

	// IRQKeyboard is raised when the keyboard controller has a byte.
	IRQKeyboard = IRQBase + 1

	// IRQCascade is used internally by the master controller to signal
	// slave interrupts and is never raised on its own.
	IRQCascade = IRQBase + 2

	// IRQMouse is raised when the auxiliary (mouse) device has a byte.
	IRQMouse = IRQBase + 12
)

// Syscall is the software interrupt vector used by user code to enter the
// kernel.
const Syscall = InterruptNumber(0x80)

// IsException returns true for vectors reserved for processor exceptions.
func (n InterruptNumber) IsException() bool {
	return n < ExceptionCount
}

// IsIRQ returns true for the remapped hardware interrupt vectors.
func (n InterruptNumber) IsIRQ() bool {
	return n >= IRQBase && n < IRQBase+IRQCount
}
