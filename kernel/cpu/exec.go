package cpu

import (
	"runtime"
	"time"

	"gravos/kernel/sync"
)

// The processor executes a single instruction stream at a time. Interrupt
// delivery, exception handling and system calls all run with the execution
// context held; user code runs outside of it and is preempted whenever an
// interrupt is delivered.
var execLock sync.Spinlock

// pauseTimeout bounds the time a paused task waits for an interrupt before
// re-checking its wait condition.
var pauseTimeout = 10 * time.Millisecond

// AcquireContext blocks until the calling task owns the execution context.
func AcquireContext() {
	execLock.Acquire()
}

// ReleaseContext relinquishes the execution context.
func ReleaseContext() {
	execLock.Release()
}

// Pause is executed by busy-wait loops that run while holding the execution
// context. If interrupts are enabled, the context is released until the next
// interrupt gets delivered so that handlers can run.
func Pause() {
	if !InterruptsEnabled() {
		runtime.Gosched()
		return
	}

	execLock.Release()
	select {
	case <-wakeCh:
	case <-haltCh:
	case <-time.After(pauseTimeout):
	}

	if Halted() {
		runtime.Goexit()
	}
	execLock.Acquire()
}

// WaitForInterrupt stops the calling task until the next interrupt is
// delivered. Waiting with interrupts disabled halts the processor for good.
func WaitForInterrupt() {
	if !InterruptsEnabled() {
		Halt()
	}

	select {
	case <-wakeCh:
	case <-haltCh:
		runtime.Goexit()
	}
}

// NotifyInterrupt wakes up a task blocked in Pause or WaitForInterrupt. It is
// invoked after an interrupt has been delivered.
func NotifyInterrupt() {
	select {
	case wakeCh <- struct{}{}:
	default:
	}
}
