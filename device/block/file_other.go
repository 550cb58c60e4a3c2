//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package block

import (
	"io"

	"github.com/sbomb100/Pintos/kernel"
)

var errFileDeviceUnsupported = &kernel.Error{Module: "block", Message: "file backed block devices are not supported on this platform"}

// FileDevice is a block device backed by a host file. It is unavailable on
// this platform.
type FileDevice struct{}

// OpenFileDevice always fails on this platform.
func OpenFileDevice(name, path string, sectors Sector) (*FileDevice, *kernel.Error) {
	return nil, errFileDeviceUnsupported
}

// DriverName implements device.Driver.
func (d *FileDevice) DriverName() string { return "" }

// DriverVersion implements device.Driver.
func (d *FileDevice) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 0 }

// DriverInit implements device.Driver.
func (d *FileDevice) DriverInit(io.Writer) *kernel.Error { return errFileDeviceUnsupported }

// SectorCount implements Device.
func (d *FileDevice) SectorCount() Sector { return 0 }

// ReadSector implements Device.
func (d *FileDevice) ReadSector(Sector, []byte) *kernel.Error { return errFileDeviceUnsupported }

// WriteSector implements Device.
func (d *FileDevice) WriteSector(Sector, []byte) *kernel.Error { return errFileDeviceUnsupported }

// Close implements io.Closer.
func (d *FileDevice) Close() error { return nil }
