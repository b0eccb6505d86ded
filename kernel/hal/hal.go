// Package hal probes for the devices the kernel talks to, initializes their
// drivers and links the console, terminal and log sinks together.
package hal

import (
	"bytes"
	"io"
	"sort"

	"gravos/device"
	"gravos/device/tty"
	"gravos/device/video/console"
	"gravos/kernel/kfmt"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole console.Device
	activeTTY     tty.Device

	// logSinks receive a copy of the kernel log in addition to the TTY.
	logSinks []io.Writer

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer

	driverListFn = device.DriverList
)

// ActiveTTY returns the currently active TTY
func ActiveTTY() tty.Device {
	return devices.activeTTY
}

// ActiveConsole returns the currently active console.
func ActiveConsole() console.Device {
	return devices.activeConsole
}

// ActiveDrivers returns the drivers initialized so far in init order.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	drivers := driverListFn()
	sort.Stable(drivers)

	for _, info := range drivers {
		if drv := info.Probe(); drv != nil {
			InitDriver(drv)
		}
	}
}

// InitDriver initializes drv, prefixing its log output with the driver name
// and version. Successfully initialized drivers are tracked by the HAL and
// wired into the console/log chain. It returns false if the driver failed to
// initialize.
func InitDriver(drv device.Driver) bool {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	strBuf.Reset()
	major, minor, patch := drv.DriverVersion()
	kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
	w.Prefix = strBuf.Bytes()

	if w.Sink == nil {
		w.Sink = kfmt.Output
	}

	if err := drv.DriverInit(&w); err != nil {
		kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
		return false
	}

	kfmt.Fprintf(&w, "initialized\n")
	onDriverInit(drv)
	devices.activeDrivers = append(devices.activeDrivers, drv)
	return true
}

// onDriverInit is invoked by InitDriver whenever a piece of hardware is
// successfully initialized.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case console.Device:
		if devices.activeConsole != nil {
			return
		}

		devices.activeConsole = drvImpl
		if devices.activeTTY != nil {
			linkTTYToConsole()
		}
	case tty.Device:
		if devices.activeTTY != nil {
			return
		}

		devices.activeTTY = drvImpl
		if devices.activeConsole != nil {
			linkTTYToConsole()
		}
	case io.Writer:
		devices.logSinks = append(devices.logSinks, drvImpl)
		updateOutputSink()
	}
}

// linkTTYToConsole connects the active TTY device to the active console device
// and syncs their contents.
func linkTTYToConsole() {
	devices.activeTTY.AttachTo(devices.activeConsole)
	devices.activeTTY.SetState(tty.StateActive)
	updateOutputSink()
}

// updateOutputSink points the kernel log at the linked TTY and every
// additional log sink.
func updateOutputSink() {
	var sinks []io.Writer
	if devices.activeTTY != nil && devices.activeConsole != nil {
		sinks = append(sinks, devices.activeTTY)
	}
	sinks = append(sinks, devices.logSinks...)

	switch len(sinks) {
	case 0:
	case 1:
		kfmt.SetOutputSink(sinks[0])
	default:
		kfmt.SetOutputSink(io.MultiWriter(sinks...))
	}
}
