package machine

import (
	"gravos/device/ps2"
	"gravos/kernel/sync"
)

const (
	keyboardIRQ = 1
	mouseIRQ    = 12

	// outputQueueSize bounds the bytes buffered by the controller; older
	// bytes are dropped when the guest does not keep up.
	outputQueueSize = 64

	defaultConfig = uint8(0x01 | ps2.ConfigAuxClockOff)
)

type outputByte struct {
	val uint8
	aux bool
}

// Controller models an 8042 PS/2 controller with a keyboard on the first
// port and a mouse on the auxiliary port.
type Controller struct {
	lock sync.Spinlock

	queue   []outputByte
	config  uint8
	pending uint8 // command waiting for a data byte

	auxEnabled bool
	streaming  bool

	raiseFn func(irq int)
	resetFn func()
}

// NewController returns a controller that raises interrupts through raiseFn
// and pulses the processor reset line through resetFn.
func NewController(raiseFn func(int), resetFn func()) *Controller {
	return &Controller{
		config:  defaultConfig,
		raiseFn: raiseFn,
		resetFn: resetFn,
	}
}

// ReadPort implements cpu.PortDevice.
func (c *Controller) ReadPort(port uint16) uint8 {
	c.lock.Acquire()
	defer c.lock.Release()

	if port == ps2.StatusPort {
		var status uint8
		if len(c.queue) != 0 {
			status |= ps2.StatusOutputFull
			if c.queue[0].aux {
				status |= ps2.StatusAuxData
			}
		}
		return status
	}

	if len(c.queue) == 0 {
		return 0
	}
	b := c.queue[0]
	c.queue = c.queue[1:]
	return b.val
}

// WritePort implements cpu.PortDevice.
func (c *Controller) WritePort(port uint16, val uint8) {
	c.lock.Acquire()
	reset := false

	if port == ps2.CommandPort {
		switch val {
		case ps2.CmdEnableAux:
			c.auxEnabled = true
			c.config &^= ps2.ConfigAuxClockOff
		case ps2.CmdReadConfig:
			c.push(outputByte{val: c.config}, false)
		case ps2.CmdWriteConfig, ps2.CmdWriteAux:
			c.pending = val
		case ps2.CmdPulseReset:
			reset = true
		}
	} else {
		switch c.pending {
		case ps2.CmdWriteConfig:
			c.config = val
		case ps2.CmdWriteAux:
			c.mouseCommand(val)
		default:
			// Keyboard commands are acknowledged and otherwise ignored.
			c.push(outputByte{val: ps2.Ack}, false)
		}
		c.pending = 0
	}

	c.lock.Release()

	if reset && c.resetFn != nil {
		c.resetFn()
	}
}

func (c *Controller) mouseCommand(val uint8) {
	switch val {
	case ps2.MouseSetDefaults:
		c.streaming = false
	case ps2.MouseEnableStreaming:
		c.streaming = true
	}
	c.push(outputByte{val: ps2.Ack, aux: true}, false)
}

// push queues b; if notify is set the matching interrupt line is raised
// when the configuration byte enables it.
func (c *Controller) push(b outputByte, notify bool) {
	if len(c.queue) == outputQueueSize {
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, b)

	if notify {
		c.notify(b)
	}
}

func (c *Controller) notify(b outputByte) {
	if c.raiseFn == nil {
		return
	}

	switch {
	case b.aux && c.config&ps2.ConfigAuxIRQ != 0:
		c.raiseFn(mouseIRQ)
	case !b.aux && c.config&0x01 != 0:
		c.raiseFn(keyboardIRQ)
	}
}

// SendScancode queues a byte from the keyboard.
func (c *Controller) SendScancode(sc uint8) {
	c.lock.Acquire()
	c.push(outputByte{val: sc}, true)
	c.lock.Release()
}

// SendMousePacket queues a movement packet from the mouse. dy grows towards
// the bottom of the screen; the packet carries it inverted the way PS/2
// mice report it. Packets are dropped until the guest enables streaming.
func (c *Controller) SendMousePacket(dx, dy int, buttons ps2.MouseButton) bool {
	c.lock.Acquire()
	defer c.lock.Release()

	if !c.auxEnabled || !c.streaming {
		return false
	}

	dx, dy = clampDelta(dx), clampDelta(-dy)
	head := uint8(0x08) | uint8(buttons)&0x07
	if dx < 0 {
		head |= 0x10
	}
	if dy < 0 {
		head |= 0x20
	}

	for _, b := range []uint8{head, uint8(int8(dx)), uint8(int8(dy))} {
		c.push(outputByte{val: b, aux: true}, true)
	}
	return true
}

// Reassert raises the interrupt line of the byte at the head of the output
// queue. It returns false if the queue is empty.
func (c *Controller) Reassert() bool {
	c.lock.Acquire()
	defer c.lock.Release()

	if len(c.queue) == 0 {
		return false
	}

	c.notify(c.queue[0])
	return true
}

// Config returns the controller configuration byte.
func (c *Controller) Config() uint8 {
	c.lock.Acquire()
	defer c.lock.Release()
	return c.config
}

func clampDelta(v int) int {
	switch {
	case v > 127:
		return 127
	case v < -128:
		return -128
	default:
		return v
	}
}
