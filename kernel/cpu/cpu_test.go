package cpu

import (
	"testing"
	"time"
)

func TestPowerOnState(t *testing.T) {
	defer PowerOn()

	EnableInterrupts()
	SetCPL(3)
	EnablePaging()
	PowerOn()

	if InterruptsEnabled() {
		t.Error("expected interrupts to be disabled after power on")
	}
	if got := CPL(); got != 0 {
		t.Errorf("expected CPL to be 0 after power on; got %d", got)
	}
	if PagingEnabled() {
		t.Error("expected paging to be disabled after power on")
	}
	if Halted() || ResetRequested() {
		t.Error("expected processor to be running after power on")
	}
}

func TestInterruptFlag(t *testing.T) {
	defer PowerOn()

	EnableInterrupts()
	if !InterruptsEnabled() {
		t.Fatal("expected interrupts to be enabled")
	}

	DisableInterrupts()
	if InterruptsEnabled() {
		t.Fatal("expected interrupts to be disabled")
	}
}

func TestSetCPLMasksRPL(t *testing.T) {
	defer PowerOn()

	SetCPL(7)
	if got := CPL(); got != 3 {
		t.Fatalf("expected CPL to be masked to 3; got %d", got)
	}
}

func TestHalt(t *testing.T) {
	defer PowerOn()

	var (
		deferred bool
		done     = make(chan struct{})
	)

	go func() {
		defer close(done)
		defer func() { deferred = true }()
		Halt()
		t.Error("expected Halt not to return")
	}()

	select {
	case <-HaltSignal():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the halt signal")
	}
	<-done

	if !deferred {
		t.Error("expected deferred calls of the halted task to run")
	}
	if !Halted() {
		t.Error("expected Halted to return true")
	}
	if ResetRequested() {
		t.Error("expected ResetRequested to return false after a plain halt")
	}
}

func TestReset(t *testing.T) {
	defer PowerOn()

	done := make(chan struct{})
	go func() {
		defer close(done)
		Reset()
	}()
	<-done

	if !Halted() || !ResetRequested() {
		t.Fatal("expected reset to stop the processor and latch the reset request")
	}
}

func TestWaitForInterrupt(t *testing.T) {
	defer PowerOn()

	t.Run("interrupts enabled", func(t *testing.T) {
		PowerOn()
		EnableInterrupts()

		woke := make(chan struct{})
		go func() {
			WaitForInterrupt()
			close(woke)
		}()

		NotifyInterrupt()
		select {
		case <-woke:
		case <-time.After(time.Second):
			t.Fatal("expected WaitForInterrupt to return after an interrupt notification")
		}
	})

	t.Run("interrupts disabled", func(t *testing.T) {
		PowerOn()

		done := make(chan struct{})
		go func() {
			defer close(done)
			WaitForInterrupt()
		}()
		<-done

		if !Halted() {
			t.Fatal("expected waiting with interrupts disabled to halt the processor")
		}
	})
}

func TestPauseReleasesContext(t *testing.T) {
	defer PowerOn()
	defer func(orig time.Duration) { pauseTimeout = orig }(pauseTimeout)
	pauseTimeout = time.Second

	EnableInterrupts()
	AcquireContext()

	entered := make(chan struct{})
	go func() {
		AcquireContext()
		close(entered)
		ReleaseContext()
		NotifyInterrupt()
	}()

	Pause()
	select {
	case <-entered:
	default:
		t.Fatal("expected another task to acquire the context while paused")
	}
	ReleaseContext()
}

func TestTables(t *testing.T) {
	defer PowerOn()

	LoadGDT(0xa00000, 47)
	if base, limit := GDTR(); base != 0xa00000 || limit != 47 {
		t.Errorf("unexpected GDTR contents: base 0x%x limit %d", base, limit)
	}

	LoadIDT(0xa01000, 2047)
	if base, limit := IDTR(); base != 0xa01000 || limit != 2047 {
		t.Errorf("unexpected IDTR contents: base 0x%x limit %d", base, limit)
	}

	LoadTaskRegister(0x28)
	if got := TaskRegister(); got != 0x28 {
		t.Errorf("expected TR to be 0x28; got 0x%x", got)
	}

	for reg := CS; reg < segmentRegisterCount; reg++ {
		LoadSegment(reg, uint16(reg)*8)
	}
	for reg := CS; reg < segmentRegisterCount; reg++ {
		if got := Segment(reg); got != uint16(reg)*8 {
			t.Errorf("expected %s to hold 0x%x; got 0x%x", reg, uint16(reg)*8, got)
		}
	}
}

func TestTLB(t *testing.T) {
	defer PowerOn()

	FillTLB(0x400123, 0x800007)
	if entry, ok := LookupTLB(0x400fff); !ok || entry != 0x800007 {
		t.Fatalf("expected cached entry 0x800007; got 0x%x (found: %t)", entry, ok)
	}

	FlushTLBEntry(0x400000)
	if _, ok := LookupTLB(0x400000); ok {
		t.Fatal("expected entry to be flushed")
	}

	FillTLB(0x1000, 0x1007)
	SwitchPDT(0x9000)
	if _, ok := LookupTLB(0x1000); ok {
		t.Fatal("expected SwitchPDT to flush the TLB")
	}
	if got := ActivePDT(); got != 0x9000 {
		t.Fatalf("expected active PDT to be 0x9000; got 0x%x", got)
	}

	WriteCR2(0xdeadbeef)
	if got := ReadCR2(); got != 0xdeadbeef {
		t.Fatalf("expected CR2 to be 0xdeadbeef; got 0x%x", got)
	}
}
