// Package vmm implements a software MMU: per-address-space page directories
// that translate virtual pages to physical frames and track the hardware
// accessed and dirty bits the way an x86 MMU would.
package vmm

import (
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/sync"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrProtection is returned when a write is attempted through a read-only mapping.
	ErrProtection = &kernel.Error{Module: "vmm", Message: "write access to a read-only page", Kind: kernel.KindInvalidAddress}

	// ErrAlreadyMapped is returned when installing a mapping for a page that is
	// already present.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped", Kind: kernel.KindInvariantViolation}
)

// PageDirectory holds the virtual to physical mappings of one address space.
// All methods are safe for concurrent use.
type PageDirectory struct {
	lock    sync.Spinlock
	entries map[mm.Page]pageTableEntry
}

// NewPageDirectory returns an empty page directory.
func NewPageDirectory() *PageDirectory {
	return &PageDirectory{
		entries: make(map[mm.Page]pageTableEntry),
	}
}

// Map establishes a mapping between a virtual page and a physical memory frame
// using the supplied flags. FlagPresent is always set. Attempts to map a page
// that is already present fail with ErrAlreadyMapped.
func (pd *PageDirectory) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	pd.lock.Acquire()
	defer pd.lock.Release()

	if pte, ok := pd.entries[page]; ok && pte.HasFlags(FlagPresent) {
		return ErrAlreadyMapped
	}

	var pte pageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(flags | FlagPresent)
	pd.entries[page] = pte
	return nil
}

// Unmap removes a mapping previously installed via a call to Map.
func (pd *PageDirectory) Unmap(page mm.Page) *kernel.Error {
	pd.lock.Acquire()
	defer pd.lock.Release()

	if _, ok := pd.entries[page]; !ok {
		return ErrInvalidMapping
	}

	delete(pd.entries, page)
	return nil
}

// Lookup returns the frame a page is mapped to.
func (pd *PageDirectory) Lookup(page mm.Page) (mm.Frame, bool) {
	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	if !ok {
		return mm.InvalidFrame, false
	}
	return pte.Frame(), true
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical page.
func (pd *PageDirectory) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	frame, ok := pd.Lookup(mm.PageFromAddress(virtAddr))
	if !ok {
		return 0, ErrInvalidMapping
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return frame.Address() + mm.PageOffset(virtAddr), nil
}

// Access performs the MMU side of a user memory access: it translates
// virtAddr, checks write permission and sets the accessed bit (and the dirty
// bit for writes) of the entry. It returns the physical frame that backs the
// address.
func (pd *PageDirectory) Access(virtAddr uintptr, write bool) (mm.Frame, *kernel.Error) {
	page := mm.PageFromAddress(virtAddr)

	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	if !ok {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	if write && !pte.HasFlags(FlagRW) {
		return mm.InvalidFrame, ErrProtection
	}

	pte.SetFlags(FlagAccessed)
	if write {
		pte.SetFlags(FlagDirty)
	}
	pd.entries[page] = pte
	return pte.Frame(), nil
}

// AccessFunc behaves like Access but also invokes fn with the backing frame
// while the directory lock is held. Mappings cannot be cleared while fn runs,
// which makes fn observe the frame the same way a single user instruction
// would. fn must not call back into the page directory.
func (pd *PageDirectory) AccessFunc(virtAddr uintptr, write bool, fn func(frame mm.Frame)) *kernel.Error {
	page := mm.PageFromAddress(virtAddr)

	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	if !ok {
		return ErrInvalidMapping
	}

	if write && !pte.HasFlags(FlagRW) {
		return ErrProtection
	}

	pte.SetFlags(FlagAccessed)
	if write {
		pte.SetFlags(FlagDirty)
	}
	pd.entries[page] = pte

	fn(pte.Frame())
	return nil
}

// Flags returns the flags of the entry for page and whether the page is mapped.
func (pd *PageDirectory) Flags(page mm.Page) (PageTableEntryFlag, bool) {
	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	return PageTableEntryFlag(uintptr(pte) &^ ptePhysPageMask), ok
}

// Len returns the number of installed mappings.
func (pd *PageDirectory) Len() int {
	pd.lock.Acquire()
	defer pd.lock.Release()

	return len(pd.entries)
}

// Install maps page to frame for user access, read-only unless writable is
// set. The accessed and dirty bits of the new entry start cleared.
func (pd *PageDirectory) Install(page mm.Page, frame mm.Frame, writable bool) *kernel.Error {
	flags := FlagUserAccessible
	if writable {
		flags |= FlagRW
	}
	return pd.Map(page, frame, flags)
}

// Mapped returns true if page has a mapping installed.
func (pd *PageDirectory) Mapped(page mm.Page) bool {
	_, ok := pd.Lookup(page)
	return ok
}

// Clear removes the mapping for page and reports whether it was dirty. The
// dirty bit is sampled under the same lock that removes the entry so a
// concurrent write cannot be lost.
func (pd *PageDirectory) Clear(page mm.Page) (bool, *kernel.Error) {
	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	if !ok {
		return false, ErrInvalidMapping
	}

	delete(pd.entries, page)
	return pte.HasFlags(FlagDirty), nil
}

// Accessed returns the accessed bit of the entry for page.
func (pd *PageDirectory) Accessed(page mm.Page) bool {
	return pd.hasFlag(page, FlagAccessed)
}

// ClearAccessed resets the accessed bit of the entry for page.
func (pd *PageDirectory) ClearAccessed(page mm.Page) {
	pd.updateFlags(page, 0, FlagAccessed)
}

// Dirty returns the dirty bit of the entry for page.
func (pd *PageDirectory) Dirty(page mm.Page) bool {
	return pd.hasFlag(page, FlagDirty)
}

// SetDirty overrides the dirty bit of the entry for page.
func (pd *PageDirectory) SetDirty(page mm.Page, dirty bool) {
	if dirty {
		pd.updateFlags(page, FlagDirty, 0)
		return
	}
	pd.updateFlags(page, 0, FlagDirty)
}

func (pd *PageDirectory) hasFlag(page mm.Page, flag PageTableEntryFlag) bool {
	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	return ok && pte.HasFlags(flag)
}

func (pd *PageDirectory) updateFlags(page mm.Page, set, clear PageTableEntryFlag) {
	pd.lock.Acquire()
	defer pd.lock.Release()

	pte, ok := pd.entries[page]
	if !ok {
		return
	}
	pte.ClearFlags(clear)
	pte.SetFlags(set)
	pd.entries[page] = pte
}
