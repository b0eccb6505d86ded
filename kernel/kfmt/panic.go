package kfmt

import (
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/sync"
)

var (
	// The following functions are mocked by tests.
	cpuHaltFn           = cpu.Halt
	cplFn               = cpu.CPL
	interruptsEnabledFn = cpu.InterruptsEnabled
	readCR2Fn           = cpu.ReadCR2

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

	// lastPanic is the cause reported by the most recent Panic call.
	lastPanic     *kernel.Error
	lastPanicLock sync.Spinlock
)

// Panic reports e together with the processor state on the active output
// sink and halts the processor. e may be a *kernel.Error, an error or a
// string. Calls to Panic never return.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	lastPanicLock.Acquire()
	lastPanic = err
	lastPanicLock.Release()

	Printf("\n*** kernel panic ***\n")
	if err != nil {
		Printf("[%s] %s\n", err.Module, err.Message)
	}
	Printf("cpl: %d, interrupts: %t, cr2: 0x%8x\n", cplFn(), interruptsEnabledFn(), readCR2Fn())
	Printf("*** system halted ***\n")

	cpuHaltFn()
}

// LastPanic returns the cause passed to the most recent Panic call. It
// returns nil if Panic was never called or was called without a cause.
func LastPanic() *kernel.Error {
	lastPanicLock.Acquire()
	defer lastPanicLock.Release()
	return lastPanic
}
