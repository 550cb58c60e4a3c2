// Package device defines the contract shared by all device drivers.
package device

import (
	"bytes"
	"io"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/kfmt"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// InitDrivers initializes each driver in order. Driver output is written to
// sink with each line prefixed by the driver name and version. It stops at
// the first driver that fails to initialize and returns its error.
func InitDrivers(sink io.Writer, drivers ...Driver) *kernel.Error {
	var (
		strBuf bytes.Buffer
		w      = kfmt.PrefixWriter{Sink: sink}
	)

	for _, drv := range drivers {
		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[%s] v%d.%d.%d: ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			return err
		}

		kfmt.Fprintf(&w, "initialized\n")
	}

	return nil
}
