// kemu boots the kernel on the emulated machine and connects it to the host
// terminal: keystrokes become PS/2 scancodes and COM1 is echoed to the
// terminal. The user program is a small shell that talks to the kernel
// exclusively through system calls.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tty "github.com/mattn/go-tty"

	"gravos/device/ps2"
	"gravos/kernel/cpu"
	"gravos/kernel/kfmt"
	"gravos/kernel/kmain"
	"gravos/machine"
	"gravos/user/sys"
)

const (
	// userKernelStack is the ring 0 stack used while the shell runs.
	userKernelStack = uint32(0x90000)

	keyCtrlC     = 0x03
	keyEscape    = 0x1b
	keyDelete    = 0x7f
	keyReturn    = '\r'
	keyBackspace = '\b'
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[kemu] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	var (
		cmdLine  = flag.String("cmdline", "", "kernel command line")
		memoryMb = flag.Uint("mem", 128, "installed memory in MB")
		tick     = flag.Duration("tick", 10*time.Millisecond, "timer interrupt period")
	)
	flag.Parse()

	term, err := tty.Open()
	if err != nil {
		exit(err)
	}
	defer term.Close()

	restore := term.MustRaw()
	defer restore()

	// The terminal is in raw mode; every line needs an explicit CR.
	out := &kfmt.PrefixWriter{
		Sink:       term.Output(),
		Prefix:     []byte("[kemu] "),
		LineEnding: []byte("\r\n"),
	}
	m := machine.New(machine.Config{
		Serial:   term.Output(),
		CmdLine:  *cmdLine,
		MemoryMb: uint32(*memoryMb),
	})

	booted := make(chan *kmain.System, 1)
	go runKernel(booted)

	// A failed boot panics and halts the kernel goroutine before it can
	// report back.
	halt := cpu.HaltSignal()
	var s *kmain.System
	select {
	case s = <-booted:
	case <-halt:
	}
	if s == nil {
		fmt.Fprintf(out, "boot failed\n")
		reportHalt(out)
		return
	}
	m.Attach(s.IDT)

	stop := make(chan struct{})
	defer close(stop)
	go m.Run(stop, *tick)

	keys := make(chan rune)
	go readKeys(term, keys)

	var dec keyDecoder
	for {
		select {
		case <-halt:
			term.Output().WriteString("\r\n")
			reportHalt(out)
			return
		case r, ok := <-keys:
			if !ok || r == keyCtrlC {
				return
			}
			ev, ok := dec.feed(r)
			switch {
			case !ok:
			case ev.scancode != 0:
				m.PressKey(ev.scancode)
				m.ReleaseKey(ev.scancode)
			default:
				m.TypeChar(ev.ch)
			}
		}
	}
}

// runKernel boots the kernel on the calling goroutine, reports the result
// through booted and then runs the shell in ring 3.
func runKernel(booted chan<- *kmain.System) {
	s := kmain.Boot(kmain.Config{InfoPtr: machine.InfoAddr})
	booted <- s
	if s == nil {
		return
	}

	s.EnterUserMode(userKernelStack, func() {
		proc := sys.NewProcess(s.IDT, s.GDT, s.Pager)
		sh := &shell{proc: proc, heap: proc.Heap()}
		sh.run()
	})

	cpu.Halt()
}

// reportHalt explains why the processor stopped.
func reportHalt(w io.Writer) {
	switch cause := kfmt.LastPanic(); {
	case cpu.ResetRequested():
		fmt.Fprintf(w, "machine reset\n")
	case cause != nil:
		fmt.Fprintf(w, "machine halted: [%s] %s\n", cause.Module, cause.Message)
	default:
		fmt.Fprintf(w, "machine halted\n")
	}
}

func readKeys(term *tty.TTY, keys chan<- rune) {
	defer close(keys)
	for {
		r, err := term.ReadRune()
		if err != nil {
			return
		}
		keys <- r
	}
}

// cursorKeys maps the final byte of the ANSI cursor key sequences to the
// make codes of the arrow keys.
var cursorKeys = map[rune]uint8{
	'A': ps2.ScancodeUp,
	'B': ps2.ScancodeDown,
	'C': ps2.ScancodeRight,
	'D': ps2.ScancodeLeft,
}

// keyEvent is a keystroke for the emulated keyboard: a character or, for
// keys that produce none, a make code.
type keyEvent struct {
	ch       byte
	scancode uint8
}

// keyDecoder turns terminal input into key events. It recognizes the cursor
// key sequences ESC [ A to ESC [ D; other escape sequences are dropped.
type keyDecoder struct {
	// seq is the number of bytes of an escape sequence seen so far.
	seq int
}

func (d *keyDecoder) feed(r rune) (keyEvent, bool) {
	switch {
	case d.seq == 0 && r == keyEscape:
		d.seq = 1
		return keyEvent{}, false
	case d.seq == 1 && r == '[':
		d.seq = 2
		return keyEvent{}, false
	case d.seq == 2:
		d.seq = 0
		scancode, ok := cursorKeys[r]
		return keyEvent{scancode: scancode}, ok
	}

	d.seq = 0
	ch := translateKey(r)
	return keyEvent{ch: ch}, ch != 0
}

// translateKey maps terminal input to the characters produced by the
// emulated keyboard.
func translateKey(r rune) byte {
	switch r {
	case keyReturn:
		return '\n'
	case keyDelete:
		return keyBackspace
	}

	if r > 0x7f {
		return 0
	}
	return byte(r)
}
