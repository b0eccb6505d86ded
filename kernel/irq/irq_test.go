package irq

import (
	"bytes"
	"strings"
	"testing"

	"gravos/device/ps2"
	"gravos/kernel"
	"gravos/kernel/cpu"
	"gravos/kernel/gate"
	"gravos/kernel/gdt"
	"gravos/kernel/kfmt"
	"gravos/kernel/mem"
	"gravos/kernel/mm/kheap"
	"gravos/kernel/mm/vmm"
)

// portBus emulates the controller ports touched by the dispatcher. Reads
// from the data port are served from a queue; writes are recorded.
type portBus struct {
	status  uint8
	data    []uint8
	written [][2]uint16
}

func (b *portBus) ReadPort(port uint16) uint8 {
	switch port {
	case ps2.StatusPort:
		st := b.status
		if len(b.data) != 0 {
			st |= ps2.StatusOutputFull
		}
		return st
	case ps2.DataPort:
		if len(b.data) == 0 {
			return 0
		}
		v := b.data[0]
		b.data = b.data[1:]
		return v
	}
	return 0xff
}

func (b *portBus) WritePort(port uint16, val uint8) {
	b.written = append(b.written, [2]uint16{port, uint16(val)})
}

func (b *portBus) writesTo(port uint16) []uint8 {
	var out []uint8
	for _, w := range b.written {
		if w[0] == port {
			out = append(out, uint8(w[1]))
		}
	}
	return out
}

// flatMMU maps every address in [lo, hi) to itself.
type flatMMU struct {
	lo, hi uintptr
}

func (m flatMMU) Access(virtAddr uintptr, _, _ bool) (uintptr, *kernel.Error) {
	if virtAddr < m.lo || virtAddr >= m.hi {
		return 0, vmm.ErrInvalidMapping
	}
	return virtAddr, nil
}

type recordingListener struct {
	down, up []uint8
	moves    []ps2.MouseEvent
}

func (l *recordingListener) KeyDown(sc uint8)             { l.down = append(l.down, sc) }
func (l *recordingListener) KeyUp(sc uint8)               { l.up = append(l.up, sc) }
func (l *recordingListener) MouseMoved(ev ps2.MouseEvent) { l.moves = append(l.moves, ev) }

type fixture struct {
	d       *Dispatcher
	gdt     *gdt.Table
	bus     *portBus
	input   *recordingListener
	console *bytes.Buffer
	panics  []interface{}
}

func setup(t *testing.T, cfg Config) *fixture {
	mem.Reset()
	cpu.PowerOn()
	cpu.DetachPortDevices()

	var heap kheap.Heap
	heap.Init(0xa00000, 64*mem.Kb)

	descTable, err := gdt.Build(heap.Allocate, 64*mem.Mb)
	if err != nil {
		t.Fatal(err)
	}
	if err = descTable.Activate(); err != nil {
		t.Fatal(err)
	}
	descTable.SetKernelStack(0x90000)

	table, err := gate.NewTable(heap.Allocate, descTable.Selector(gdt.KernelCode))
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		gdt:     descTable,
		bus:     &portBus{},
		input:   &recordingListener{},
		console: &bytes.Buffer{},
	}
	cpu.AttachPortDevice(f.bus, masterCommand, masterData, slaveCommand, slaveData, ps2.DataPort, ps2.StatusPort)

	if cfg.Input == nil {
		cfg.Input = f.input
	}
	if cfg.Console == nil {
		cfg.Console = f.console
	}
	f.d = NewDispatcher(table, cfg)

	panicFn = func(e interface{}) { f.panics = append(f.panics, e) }

	var kfmtBuf bytes.Buffer
	kfmt.SetOutputSink(&kfmtBuf)

	if err = f.d.Init(); err != nil {
		t.Fatal(err)
	}

	return f
}

func teardown() {
	panicFn = kfmt.Panic
	readCR2Fn = cpu.ReadCR2
	pauseFn = cpu.Pause
	haltFn = cpu.Halt
	resetControllerFn = ps2.Reset
	kfmt.SetOutputSink(nil)
	cpu.DetachPortDevices()
	cpu.PowerOn()
	mem.Reset()
}

func syscallRegs(num, ebx, ecx, edx uint32) *gate.Registers {
	return &gate.Registers{EAX: num, EBX: ebx, ECX: ecx, EDX: edx, CS: 0x1b}
}

func userTrap(f *fixture, regs *gate.Registers) {
	cpu.SetCPL(3)
	f.d.Table().Trap(gate.Syscall, regs)
}

func TestPICRemap(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	specs := []struct {
		port uint16
		exp  []uint8
	}{
		{masterCommand, []uint8{0x11}},
		{masterData, []uint8{0x20, 0x04, 0x01, 0xf8}},
		{slaveCommand, []uint8{0x11}},
		{slaveData, []uint8{0x28, 0x02, 0x01, 0xef}},
	}

	for specIndex, spec := range specs {
		if got := f.bus.writesTo(spec.port); !bytes.Equal(got, spec.exp) {
			t.Errorf("[spec %d] expected writes to port 0x%x to be %v; got %v", specIndex, spec.port, spec.exp, got)
		}
	}

	if !f.d.pic.Remapped() {
		t.Fatal("expected controllers to be marked as remapped")
	}
}

func TestRegisterIRQBeforeRemap(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	d := NewDispatcher(f.d.Table(), Config{})
	if err := d.registerIRQ(gate.IRQKeyboard); err != errIRQBeforeRemap {
		t.Fatalf("expected errIRQBeforeRemap; got %v", err)
	}
}

func TestGateLayout(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})
	table := f.d.Table()

	for vector := 0; vector < 256; vector++ {
		num := gate.InterruptNumber(vector)
		desc := table.Gate(num)

		var expDPL uint8
		switch {
		case num == gate.Syscall:
			expDPL = 3
		case num.IsException(), num.IsIRQ():
		default:
			continue
		}

		if !desc.Present() {
			t.Errorf("[vector 0x%x] expected gate to be present", vector)
		}
		if got := desc.DPL(); got != expDPL {
			t.Errorf("[vector 0x%x] expected DPL %d; got %d", vector, expDPL, got)
		}
		if got := desc.Type(); got != gate.InterruptGate {
			t.Errorf("[vector 0x%x] expected interrupt gate; got type 0x%x", vector, got)
		}
	}

	if base, limit := cpu.IDTR(); uintptr(base) != table.Address() || limit != 2047 {
		t.Fatalf("expected IDTR to point at the table; got base 0x%x limit %d", base, limit)
	}
}

func TestEndOfInterrupt(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	for line := 0; line < gate.IRQCount; line++ {
		num := gate.IRQBase + gate.InterruptNumber(line)
		f.bus.written = nil

		f.d.HandleInterrupt(num, &gate.Registers{})

		expSlave := 0
		if num >= gate.IRQSlaveBase {
			expSlave = 1
		}

		if got := f.bus.writesTo(masterCommand); len(got) != 1 || got[0] != cmdEOI {
			t.Errorf("[vector 0x%x] expected a single EOI to the master; got %v", uint8(num), got)
		}
		if got := f.bus.writesTo(slaveCommand); len(got) != expSlave {
			t.Errorf("[vector 0x%x] expected %d EOI(s) to the slave; got %v", uint8(num), expSlave, got)
		}
	}
}

func TestTimerTicks(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})
	cpu.EnableInterrupts()

	for i := 0; i < 3; i++ {
		if !f.d.Table().Interrupt(gate.IRQTimer, &gate.Registers{}, nil) {
			t.Fatal("expected timer interrupt to be delivered")
		}
	}

	if got := f.d.Ticks(); got != 3 {
		t.Fatalf("expected 3 ticks; got %d", got)
	}

	cpu.DisableInterrupts()
	if f.d.Table().Interrupt(gate.IRQTimer, &gate.Registers{}, nil) {
		t.Fatal("expected interrupt to stay pending while IF is clear")
	}
}

func TestKeyboardInterrupt(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})
	cpu.EnableInterrupts()

	// press 'a', release 'a'
	f.bus.data = []uint8{0x1e, 0x9e}
	f.d.Table().Interrupt(gate.IRQKeyboard, &gate.Registers{}, nil)
	f.d.Table().Interrupt(gate.IRQKeyboard, &gate.Registers{}, nil)

	if len(f.input.down) != 1 || f.input.down[0] != 0x1e {
		t.Errorf("expected KeyDown(0x1e); got %v", f.input.down)
	}
	if len(f.input.up) != 1 || f.input.up[0] != 0x1e {
		t.Errorf("expected KeyUp(0x1e); got %v", f.input.up)
	}
	if got := f.d.kbd.GetChar(); got != 'a' {
		t.Fatalf("expected latched key 'a'; got %q", got)
	}
}

func TestMouseInterrupt(t *testing.T) {
	defer teardown()
	f := setup(t, Config{Mouse: ps2.NewMouse(800, 600)})
	cpu.EnableInterrupts()

	f.bus.status = ps2.StatusAuxData
	f.bus.data = []uint8{0x09, 10, 5}
	for i := 0; i < 3; i++ {
		f.d.Table().Interrupt(gate.IRQMouse, &gate.Registers{}, nil)
	}

	if len(f.input.moves) != 1 {
		t.Fatalf("expected one mouse event; got %d", len(f.input.moves))
	}

	ev := f.input.moves[0]
	if ev.DX != 10 || ev.DY != -5 || ev.X != 410 || ev.Y != 295 || ev.Buttons != ps2.ButtonLeft {
		t.Fatalf("unexpected mouse event %+v", ev)
	}
}

func TestSyscallWrite(t *testing.T) {
	defer teardown()
	f := setup(t, Config{MMU: flatMMU{lo: 0x400000, hi: 0x401000}})

	msg := strings.Repeat("hello world ", 20)
	mem.Write(0x400000, []byte(msg))

	userTrap(f, syscallRegs(SysWrite, 1, 0x400000, uint32(len(msg))))

	if got := f.console.String(); got != msg {
		t.Fatalf("expected console output %q; got %q", msg, got)
	}
	if got := cpu.CPL(); got != 3 {
		t.Fatalf("expected CPL to be restored to 3; got %d", got)
	}
}

func TestSyscallWriteFault(t *testing.T) {
	defer teardown()
	f := setup(t, Config{MMU: flatMMU{lo: 0x400000, hi: 0x401000}})

	var faultAddr uint32
	readCR2Fn = func() uint32 { return faultAddr }

	mem.Write(0x400ffe, []byte("ok"))
	regs := syscallRegs(SysWrite, 1, 0x400ffe, 4)
	faultAddr = 0x401000
	userTrap(f, regs)

	if got := f.console.String(); got != "ok" {
		t.Errorf("expected the bytes before the fault to be written; got %q", got)
	}
	if got := cpu.ReadCR2(); got != 0x401000 {
		t.Errorf("expected CR2 to hold the faulting address; got 0x%x", got)
	}
	if len(f.panics) != 1 || f.panics[0] != errPageFault {
		t.Fatalf("expected a page fault panic; got %v", f.panics)
	}
}

func TestSyscallSbrk(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	specs := []struct {
		incr uint32
		exp  uint32
	}{
		{0x1000, 0x800000},
		{0, 0x801000},
		{uint32(mem.IdentityMapCeiling), 0},
		{0xffffffff, 0},
		{0x10, 0x801000},
	}

	for specIndex, spec := range specs {
		regs := syscallRegs(SysSbrk, spec.incr, 0, 0)
		userTrap(f, regs)

		if regs.EAX != spec.exp {
			t.Errorf("[spec %d] expected sbrk(0x%x) to return 0x%x; got 0x%x", specIndex, spec.incr, spec.exp, regs.EAX)
		}
	}

	if got := f.d.Break(); got != 0x801010 {
		t.Fatalf("expected break 0x801010; got 0x%x", got)
	}
}

func TestProgramBreakCeiling(t *testing.T) {
	brk := NewProgramBreak(0x800000, 0x801000)

	if got := brk.Grow(0x1000); got != 0 {
		t.Fatalf("expected a break reaching the ceiling to be rejected; got 0x%x", got)
	}
	if got := brk.Grow(0xfff); got != 0x800000 {
		t.Fatalf("expected previous break 0x800000; got 0x%x", got)
	}
	if got := brk.Current(); got != 0x800fff {
		t.Fatalf("expected break 0x800fff; got 0x%x", got)
	}
}

func TestSyscallRead(t *testing.T) {
	defer teardown()

	t.Run("key already latched", func(t *testing.T) {
		f := setup(t, Config{})
		f.d.kbd.Decode(0x23) // 'h'

		regs := syscallRegs(SysRead, 0, 0, 0)
		userTrap(f, regs)

		if regs.EAX != 'h' {
			t.Fatalf("expected 'h'; got %q", rune(regs.EAX))
		}
		if cpu.InterruptsEnabled() {
			t.Fatal("expected interrupt flag to be restored")
		}
	})

	t.Run("wait for key", func(t *testing.T) {
		f := setup(t, Config{})

		var pauses int
		pauseFn = func() {
			if !cpu.InterruptsEnabled() {
				t.Error("expected interrupts to be enabled while waiting")
			}
			if pauses++; pauses == 3 {
				f.d.kbd.Decode(0x1c) // enter
			}
		}

		regs := syscallRegs(SysRead, 0, 0, 0)
		userTrap(f, regs)

		if regs.EAX != '\n' {
			t.Fatalf("expected '\\n'; got %q", rune(regs.EAX))
		}
		if pauses != 3 {
			t.Fatalf("expected 3 pauses; got %d", pauses)
		}
	})
}

func TestSyscallReboot(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	var calls []string
	resetControllerFn = func() { calls = append(calls, "reset") }
	haltFn = func() { calls = append(calls, "halt") }

	userTrap(f, syscallRegs(SysReboot, 0, 0, 0))

	if exp := "reset,halt"; strings.Join(calls, ",") != exp {
		t.Fatalf("expected calls %q; got %q", exp, strings.Join(calls, ","))
	}
}

func TestUnknownSyscall(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	regs := syscallRegs(1234, 1, 2, 3)
	userTrap(f, regs)

	if regs.EAX != 1234 {
		t.Fatalf("expected EAX to be left untouched; got %d", regs.EAX)
	}
}

func TestPageFault(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	readCR2Fn = func() uint32 { return 0xdeadb000 }
	f.d.Table().Exception(gate.PageFaultException, &gate.Registers{Info: 6})

	exp := "PANIC: PAGE FAULT ADDR: 0xDEADB000"
	for x := 0; x < len(exp); x++ {
		ch, attr := f.d.display.Char(uint32(x)+1, 1)
		if ch != exp[x] || attr != 0x4f {
			t.Fatalf("expected %q with attr 0x4f at column %d; got %q attr 0x%x", exp[x], x, ch, attr)
		}
	}

	if len(f.panics) != 1 || f.panics[0] != errPageFault {
		t.Fatalf("expected a page fault panic; got %v", f.panics)
	}
}

func TestOtherExceptions(t *testing.T) {
	defer teardown()
	f := setup(t, Config{})

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	f.d.Table().Exception(gate.InvalidOpcode, &gate.Registers{EIP: 0x1234})

	if len(f.panics) != 1 || f.panics[0] != errException {
		t.Fatalf("expected an exception panic; got %v", f.panics)
	}
	if got := buf.String(); !strings.Contains(got, "Exception 6 (invalid opcode)") {
		t.Fatalf("expected exception report; got:\n%s", got)
	}
	if _, attr := f.d.display.Char(1, 1); attr == 0x4f {
		t.Fatal("expected the page fault banner to be reserved for page faults")
	}
}

func TestPageFaultReason(t *testing.T) {
	for code := uint32(0); code < 8; code++ {
		if got := pageFaultReason(code); got == "unknown" {
			t.Errorf("[spec %d] expected a description", code)
		}
	}
	if got := pageFaultReason(0x10); got != "unknown" {
		t.Fatalf("expected unknown; got %q", got)
	}
}

func TestDefaultDisplay(t *testing.T) {
	d := NewDispatcher(nil, Config{})
	if w, h := d.display.Dimensions(); w != 80 || h != 25 {
		t.Fatalf("expected 80x25 display; got %dx%d", w, h)
	}
}
