package irq

import (
	"gravos/device/video/console"
	"gravos/kernel/gate"
	"gravos/kernel/kfmt"
)

const pageFaultBanner = "PANIC: PAGE FAULT ADDR: 0x"

var exceptionNames = [gate.ExceptionCount]string{
	"divide error", "debug", "non-maskable interrupt", "breakpoint",
	"overflow", "bound range exceeded", "invalid opcode", "device not available",
	"double fault", "coprocessor segment overrun", "invalid TSS", "segment not present",
	"stack-segment fault", "general protection fault", "page fault", "reserved",
	"x87 floating-point exception", "alignment check", "machine check", "SIMD floating-point exception",
}

// pageFault reports the faulting address directly on the text buffer, since
// the console stack may itself be the cause of the fault, and halts.
func (d *Dispatcher) pageFault(regs *gate.Registers) {
	faultAddr := readCR2Fn()

	msg := make([]byte, 0, len(pageFaultBanner)+8)
	msg = append(msg, pageFaultBanner...)
	msg = appendHex32(msg, faultAddr)
	d.display.WriteString(string(msg), console.ColorWhite, console.ColorRed, 1, 1)

	kfmt.Printf("\nPage fault while accessing address: 0x%8x\nReason: %s\n\nRegisters:\n", faultAddr, pageFaultReason(regs.Info))
	regs.DumpTo(kfmt.Output)

	panicFn(errPageFault)
}

func (d *Dispatcher) exception(num gate.InterruptNumber, regs *gate.Registers) {
	name := exceptionNames[num]
	if name == "" {
		name = "reserved"
	}

	kfmt.Printf("\nException %d (%s), error code: 0x%x\nRegisters:\n", uint8(num), name, regs.Info)
	regs.DumpTo(kfmt.Output)

	panicFn(errException)
}

func pageFaultReason(code uint32) string {
	switch code {
	case 0:
		return "read from non-present page"
	case 1:
		return "page protection violation (read)"
	case 2:
		return "write to non-present page"
	case 3:
		return "page protection violation (write)"
	case 4:
		return "read from non-present page in user-mode"
	case 5:
		return "page protection violation (user-mode read)"
	case 6:
		return "write to non-present page in user-mode"
	case 7:
		return "page protection violation (user-mode write)"
	default:
		return "unknown"
	}
}

// appendHex32 appends v as 8 upper-case hex digits.
func appendHex32(buf []byte, v uint32) []byte {
	const digits = "0123456789ABCDEF"
	for shift := 28; shift >= 0; shift -= 4 {
		buf = append(buf, digits[(v>>uint(shift))&0xf])
	}
	return buf
}
