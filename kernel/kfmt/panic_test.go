package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"gravos/kernel"
	"gravos/kernel/cpu"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		cplFn = cpu.CPL
		interruptsEnabledFn = cpu.InterruptsEnabled
		readCR2Fn = cpu.ReadCR2
		outputSink = nil
		lastPanic = nil
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}
	cplFn = func() uint8 { return 3 }
	interruptsEnabledFn = func() bool { return true }
	readCR2Fn = func() uint32 { return 0x9000000 }

	const state = "cpl: 3, interrupts: true, cr2: 0x09000000\n"

	specs := []struct {
		name     string
		arg      interface{}
		exp      string
		expCause string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "irq", Message: "page fault"},
			"\n*** kernel panic ***\n[irq] page fault\n" + state + "*** system halted ***\n",
			"page fault",
		},
		{
			"with error",
			errors.New("go error"),
			"\n*** kernel panic ***\n[rt] go error\n" + state + "*** system halted ***\n",
			"go error",
		},
		{
			"with string",
			"string error",
			"\n*** kernel panic ***\n[rt] string error\n" + state + "*** system halted ***\n",
			"string error",
		},
		{
			"without error",
			nil,
			"\n*** kernel panic ***\n" + state + "*** system halted ***\n",
			"",
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			cpuHaltCalled = false
			var buf bytes.Buffer
			SetOutputSink(&buf)

			Panic(spec.arg)

			if got := buf.String(); got != spec.exp {
				t.Fatalf("expected to get:\n%q\ngot:\n%q", spec.exp, got)
			}

			if !cpuHaltCalled {
				t.Fatal("expected cpu.Halt() to be called by Panic")
			}

			cause := LastPanic()
			switch {
			case spec.expCause == "" && cause != nil:
				t.Fatalf("expected no recorded cause; got %v", cause)
			case spec.expCause != "" && (cause == nil || cause.Message != spec.expCause):
				t.Fatalf("expected recorded cause %q; got %v", spec.expCause, cause)
			}
		})
	}
}
