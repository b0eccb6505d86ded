// Package cpu models the 32-bit x86 processor that the kernel runs on. The
// model keeps the architectural state that the kernel manipulates (control
// registers, descriptor table registers, segment selectors, the interrupt
// flag, the privilege level and the TLB) and exposes it through the same
// small set of primitives that the kernel would otherwise implement with
// privileged instructions.
package cpu

import (
	"runtime"
	"sync/atomic"

	"gravos/kernel/sync"
)

// SegmentRegister identifies one of the processor's segment registers.
type SegmentRegister uint8

// The segment registers that the kernel reloads.
const (
	CS SegmentRegister = iota
	DS
	ES
	FS
	GS
	SS
	segmentRegisterCount
)

// String implements fmt.Stringer.
func (r SegmentRegister) String() string {
	switch r {
	case CS:
		return "cs"
	case DS:
		return "ds"
	case ES:
		return "es"
	case FS:
		return "fs"
	case GS:
		return "gs"
	case SS:
		return "ss"
	}
	return "??"
}

const (
	cr0ProtectedMode = uint32(1 << 0)
	cr0Paging        = uint32(1 << 31)
)

type processorState struct {
	cr0, cr2, cr3 uint32

	interruptsEnabled bool
	cpl               uint8

	gdtBase, idtBase   uint32
	gdtLimit, idtLimit uint16
	tr                 uint16
	segments           [segmentRegisterCount]uint16

	tlb map[uintptr]uint32
}

var (
	// stateLock guards every access to state.
	stateLock sync.Spinlock
	state     processorState

	halted         uint32
	resetRequested uint32
	haltCh         = make(chan struct{})
	wakeCh         = make(chan struct{}, 1)
)

func init() {
	PowerOn()
}

// PowerOn puts the processor in the state it has right after the firmware
// hands control to the boot loader: protected mode without paging, interrupts
// disabled, ring 0 and an empty TLB.
func PowerOn() {
	stateLock.Acquire()
	state = processorState{
		cr0: cr0ProtectedMode,
		tlb: make(map[uintptr]uint32),
	}
	stateLock.Release()

	atomic.StoreUint32(&halted, 0)
	atomic.StoreUint32(&resetRequested, 0)
	haltCh = make(chan struct{})
	wakeCh = make(chan struct{}, 1)
}

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() {
	stateLock.Acquire()
	state.interruptsEnabled = true
	stateLock.Release()
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {
	stateLock.Acquire()
	state.interruptsEnabled = false
	stateLock.Release()
}

// InterruptsEnabled returns true if the interrupt flag is set.
func InterruptsEnabled() bool {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.interruptsEnabled
}

// CPL returns the current privilege level.
func CPL() uint8 {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.cpl
}

// SetCPL switches the current privilege level. It is invoked when the
// processor changes rings, i.e. when entering an interrupt handler or when
// the kernel transfers control to user code.
func SetCPL(cpl uint8) {
	stateLock.Acquire()
	state.cpl = cpl & 3
	stateLock.Release()
}

// Halt stops instruction execution. The calling task never returns from Halt;
// its deferred calls still run so that any held locks are released.
func Halt() {
	if atomic.CompareAndSwapUint32(&halted, 0, 1) {
		close(haltCh)
	}
	runtime.Goexit()
}

// Halted returns true if the processor has been halted.
func Halted() bool {
	return atomic.LoadUint32(&halted) == 1
}

// HaltSignal returns a channel that is closed when the processor halts.
func HaltSignal() <-chan struct{} {
	return haltCh
}

// Reset pulses the processor reset line. The processor stops executing the
// current instruction stream and never returns.
func Reset() {
	atomic.StoreUint32(&resetRequested, 1)
	Halt()
}

// ResetRequested returns true if the processor was stopped by a reset.
func ResetRequested() bool {
	return atomic.LoadUint32(&resetRequested) == 1
}
