package block

import (
	"io"
	"sync"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/kfmt"
)

// MemDevice is a block device backed by host memory. Its contents are lost
// when the device is dropped.
type MemDevice struct {
	mu      sync.Mutex
	name    string
	sectors Sector
	data    []byte
}

// NewMemDevice returns a zero-filled memory device with the given capacity.
func NewMemDevice(name string, sectors Sector) *MemDevice {
	return &MemDevice{
		name:    name,
		sectors: sectors,
		data:    make([]byte, int(sectors)*SectorSize),
	}
}

// DriverName implements device.Driver.
func (d *MemDevice) DriverName() string { return d.name }

// DriverVersion implements device.Driver.
func (d *MemDevice) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver.
func (d *MemDevice) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "%s: %d sectors (%d KB, memory)\n", d.name, d.sectors, int(d.sectors)*SectorSize/1024)
	return nil
}

// SectorCount implements Device.
func (d *MemDevice) SectorCount() Sector { return d.sectors }

// ReadSector implements Device.
func (d *MemDevice) ReadSector(sector Sector, buf []byte) *kernel.Error {
	if err := checkTransfer(d, sector, buf); err != nil {
		return err
	}

	d.mu.Lock()
	copy(buf, d.data[int(sector)*SectorSize:])
	d.mu.Unlock()
	return nil
}

// WriteSector implements Device.
func (d *MemDevice) WriteSector(sector Sector, buf []byte) *kernel.Error {
	if err := checkTransfer(d, sector, buf); err != nil {
		return err
	}

	d.mu.Lock()
	copy(d.data[int(sector)*SectorSize:], buf)
	d.mu.Unlock()
	return nil
}
