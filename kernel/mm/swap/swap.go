// Package swap implements the swap store: a bitmap allocator of page-sized
// slots on a dedicated block device.
package swap

import (
	"math/bits"
	"sync"

	"github.com/sbomb100/Pintos/device/block"
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/kfmt"
	"github.com/sbomb100/Pintos/kernel/mm"
)

// SectorsPerSlot is the number of device sectors that hold one page.
const SectorsPerSlot = int(mm.PageSize) / block.SectorSize

// Slot is the index of a page-sized run of sectors on the swap device.
type Slot uint32

// NoSlot is returned by Allocate when it fails.
const NoSlot = ^Slot(0)

var (
	log = kfmt.Module("swap")

	errNoDevice       = &kernel.Error{Module: "swap", Message: "no swap device available"}
	errDeviceTooSmall = &kernel.Error{Module: "swap", Message: "swap device cannot hold a single page"}
	errSwapFull       = &kernel.Error{Module: "swap", Message: "no free swap slots", Kind: kernel.KindResourceExhausted}
	errBadSlot        = &kernel.Error{Module: "swap", Message: "swap slot out of range", Kind: kernel.KindInvariantViolation}
	errSlotNotInUse   = &kernel.Error{Module: "swap", Message: "swap slot is not allocated", Kind: kernel.KindInvariantViolation}
	errBadPageSize    = &kernel.Error{Module: "swap", Message: "swap transfers must be exactly one page long", Kind: kernel.KindInvariantViolation}
)

// Store tracks which slots of the swap device are in use and moves page
// contents to and from them. A single lock serializes slot bookkeeping and
// device I/O.
type Store struct {
	mu     sync.Mutex
	dev    block.Device
	slots  int
	inUse  int
	bitmap []uint64
}

// New creates a store that uses every whole slot of dev.
func New(dev block.Device) (*Store, *kernel.Error) {
	if dev == nil {
		return nil, errNoDevice
	}

	slots := int(dev.SectorCount()) / SectorsPerSlot
	if slots == 0 {
		return nil, errDeviceTooSmall
	}

	s := &Store{
		dev:    dev,
		slots:  slots,
		bitmap: make([]uint64, (slots+63)>>6),
	}

	// Mark the bits past the last slot as used so Allocate never hands
	// them out.
	for slot := slots; slot < len(s.bitmap)<<6; slot++ {
		s.markSlot(Slot(slot), true)
	}

	log.Info("swap store ready", "device", dev.DriverName(), "slots", slots)
	return s, nil
}

// Capacity returns the number of slots in the store.
func (s *Store) Capacity() int {
	return s.slots
}

// InUse returns the number of allocated slots.
func (s *Store) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Allocate reserves the first free slot.
func (s *Store) Allocate() (Slot, *kernel.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.allocate()
}

// Put reserves a slot and writes page to it. This is equivalent to
// Allocate followed by Write but holds the store lock once.
func (s *Store) Put(page []byte) (Slot, *kernel.Error) {
	if len(page) != int(mm.PageSize) {
		return NoSlot, errBadPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.allocate()
	if err != nil {
		return NoSlot, err
	}

	if err = s.transfer(slot, page, true); err != nil {
		s.markSlot(slot, false)
		s.inUse--
		return NoSlot, err
	}
	return slot, nil
}

// Write copies page to an allocated slot.
func (s *Store) Write(slot Slot, page []byte) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSlot(slot, page); err != nil {
		return err
	}
	return s.transfer(slot, page, true)
}

// Read copies the contents of an allocated slot into page.
func (s *Store) Read(slot Slot, page []byte) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSlot(slot, page); err != nil {
		return err
	}
	return s.transfer(slot, page, false)
}

// Free releases an allocated slot.
func (s *Store) Free(slot Slot) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSlot(slot, nil); err != nil {
		return err
	}

	s.markSlot(slot, false)
	s.inUse--
	return nil
}

func (s *Store) allocate() (Slot, *kernel.Error) {
	for index, word := range s.bitmap {
		if word == ^uint64(0) {
			continue
		}

		slot := Slot(index<<6 + bits.LeadingZeros64(^word))
		s.markSlot(slot, true)
		s.inUse++
		return slot, nil
	}

	return NoSlot, errSwapFull
}

// checkSlot verifies that slot is allocated and, if page is not nil, that it
// is a full page.
func (s *Store) checkSlot(slot Slot, page []byte) *kernel.Error {
	if int(slot) >= s.slots {
		return errBadSlot
	}
	if !s.slotInUse(slot) {
		return errSlotNotInUse
	}
	if page != nil && len(page) != int(mm.PageSize) {
		return errBadPageSize
	}
	return nil
}

// transfer moves one page between page and the sectors of slot.
func (s *Store) transfer(slot Slot, page []byte, write bool) *kernel.Error {
	first := block.Sector(int(slot) * SectorsPerSlot)
	for i := 0; i < SectorsPerSlot; i++ {
		buf := page[i*block.SectorSize : (i+1)*block.SectorSize]

		var err *kernel.Error
		if write {
			err = s.dev.WriteSector(first+block.Sector(i), buf)
		} else {
			err = s.dev.ReadSector(first+block.Sector(i), buf)
		}
		if err != nil {
			log.Error("swap transfer failed", "slot", slot, "write", write, "err", err)
			return err
		}
	}

	log.Debug("swap transfer", "slot", slot, "write", write)
	return nil
}

// markSlot updates the bitmap entry for slot. Bits are stored MSB first so
// that the first free slot in a block is found with a leading zero count.
func (s *Store) markSlot(slot Slot, used bool) {
	index, mask := slot>>6, uint64(1)<<(63-(slot&63))
	if used {
		s.bitmap[index] |= mask
		return
	}
	s.bitmap[index] &^= mask
}

func (s *Store) slotInUse(slot Slot) bool {
	return s.bitmap[slot>>6]&(uint64(1)<<(63-(slot&63))) != 0
}
