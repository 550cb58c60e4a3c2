//go:build linux || darwin || freebsd || netbsd || openbsd

package block

import (
	"io"
	"os"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/kfmt"
	"golang.org/x/sys/unix"
)

var (
	// preadFn and pwriteFn are replaced by tests to simulate short
	// transfers.
	preadFn  = unix.Pread
	pwriteFn = unix.Pwrite
)

// FileDevice is a block device backed by a host file, accessed with
// positional reads and writes so concurrent transfers do not share a file
// offset.
type FileDevice struct {
	name    string
	file    *os.File
	sectors Sector
}

// OpenFileDevice opens (creating if needed) the host file at path and sizes it
// to hold the given number of sectors. If sectors is zero, the capacity is
// derived from the current file size.
func OpenFileDevice(name, path string, sectors Sector) (*FileDevice, *kernel.Error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &kernel.Error{Module: "block", Message: "unable to open " + path + ": " + err.Error()}
	}

	fd := int(file.Fd())
	if sectors == 0 {
		var stat unix.Stat_t
		if err := unix.Fstat(fd, &stat); err != nil {
			file.Close()
			return nil, &kernel.Error{Module: "block", Message: "unable to stat " + path + ": " + err.Error()}
		}
		sectors = Sector(stat.Size / SectorSize)
	} else if err := unix.Ftruncate(fd, int64(sectors)*SectorSize); err != nil {
		file.Close()
		return nil, &kernel.Error{Module: "block", Message: "unable to size " + path + ": " + err.Error()}
	}

	return &FileDevice{name: name, file: file, sectors: sectors}, nil
}

// DriverName implements device.Driver.
func (d *FileDevice) DriverName() string { return d.name }

// DriverVersion implements device.Driver.
func (d *FileDevice) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver.
func (d *FileDevice) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "%s: %d sectors (%d KB, %s)\n", d.name, d.sectors, int(d.sectors)*SectorSize/1024, d.file.Name())
	return nil
}

// SectorCount implements Device.
func (d *FileDevice) SectorCount() Sector { return d.sectors }

// ReadSector implements Device.
func (d *FileDevice) ReadSector(sector Sector, buf []byte) *kernel.Error {
	if err := checkTransfer(d, sector, buf); err != nil {
		return err
	}

	n, err := preadFn(int(d.file.Fd()), buf, int64(sector)*SectorSize)
	if err != nil {
		return &kernel.Error{Module: "block", Message: "read failed: " + err.Error(), Kind: kernel.KindShortIO}
	}
	if n != SectorSize {
		return errShortTransfer
	}
	return nil
}

// WriteSector implements Device.
func (d *FileDevice) WriteSector(sector Sector, buf []byte) *kernel.Error {
	if err := checkTransfer(d, sector, buf); err != nil {
		return err
	}

	n, err := pwriteFn(int(d.file.Fd()), buf, int64(sector)*SectorSize)
	if err != nil {
		return &kernel.Error{Module: "block", Message: "write failed: " + err.Error(), Kind: kernel.KindShortIO}
	}
	if n != SectorSize {
		return errShortTransfer
	}
	return nil
}

// Close releases the host file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
