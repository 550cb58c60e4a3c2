// Package block provides sector-addressed block devices and a role table
// that lets the kernel find the device dedicated to a given use (e.g. swap).
package block

import (
	"sync"

	"github.com/sbomb100/Pintos/device"
	"github.com/sbomb100/Pintos/kernel"
)

// SectorSize is the size of a block device sector in bytes.
const SectorSize = 512

// Sector is the index of a sector on a block device.
type Sector uint32

// Role describes what the kernel uses a block device for.
type Role uint8

const (
	// RoleFilesys is the device hosting the file system.
	RoleFilesys Role = iota

	// RoleScratch is a device used for temporary data.
	RoleScratch

	// RoleSwap is the device dedicated to swapped-out pages.
	RoleSwap

	roleCount
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleFilesys:
		return "filesys"
	case RoleScratch:
		return "scratch"
	case RoleSwap:
		return "swap"
	default:
		return "unknown"
	}
}

// Device is a block device that transfers whole sectors.
type Device interface {
	device.Driver

	// SectorCount returns the capacity of the device in sectors.
	SectorCount() Sector

	// ReadSector reads sector into buf which must be SectorSize bytes long.
	ReadSector(sector Sector, buf []byte) *kernel.Error

	// WriteSector writes buf, which must be SectorSize bytes long, to sector.
	WriteSector(sector Sector, buf []byte) *kernel.Error
}

var (
	rolesMu sync.Mutex
	roles   [roleCount]Device

	errSectorOutOfRange = &kernel.Error{Module: "block", Message: "sector number exceeds device capacity", Kind: kernel.KindInvariantViolation}
	errBadBufferSize    = &kernel.Error{Module: "block", Message: "transfer buffer must be exactly one sector long", Kind: kernel.KindInvariantViolation}
	errShortTransfer    = &kernel.Error{Module: "block", Message: "device transferred fewer bytes than a sector", Kind: kernel.KindShortIO}
	errUnknownRole      = &kernel.Error{Module: "block", Message: "unknown block device role"}
)

// SetRole assigns dev to role, replacing any device previously assigned to it.
// Passing a nil dev clears the role.
func SetRole(role Role, dev Device) *kernel.Error {
	if role >= roleCount {
		return errUnknownRole
	}

	rolesMu.Lock()
	roles[role] = dev
	rolesMu.Unlock()
	return nil
}

// ByRole returns the device assigned to role or nil if there is none.
func ByRole(role Role) Device {
	if role >= roleCount {
		return nil
	}

	rolesMu.Lock()
	defer rolesMu.Unlock()
	return roles[role]
}

// checkTransfer validates the arguments of a sector transfer.
func checkTransfer(dev Device, sector Sector, buf []byte) *kernel.Error {
	if sector >= dev.SectorCount() {
		return errSectorOutOfRange
	}
	if len(buf) != SectorSize {
		return errBadBufferSize
	}
	return nil
}
