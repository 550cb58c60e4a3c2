package vm

import (
	"sync"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/mm/swap"
)

// MapID identifies a file mapping created by Mmap.
type MapID int

type mapping struct {
	addr  uintptr
	pages int
}

// AddressSpace is the virtual memory state of one user process.
type AddressSpace struct {
	vm    *VM
	pool  *Pool
	mmu   MMU
	pages *PageTable

	// mu guards the mapping table.
	mu     sync.Mutex
	mmaps  map[MapID]mapping
	nextID MapID
}

// Pages returns the supplemental page table of the address space.
func (as *AddressSpace) Pages() *PageTable {
	return as.pages
}

// MMU returns the mapping capability of the address space.
func (as *AddressSpace) MMU() MMU {
	return as.mmu
}

// Lookup returns the page descriptor covering vaddr.
func (as *AddressSpace) Lookup(vaddr uintptr) (*Page, bool) {
	return as.pages.Lookup(vaddr)
}

// Register creates the descriptor for the page containing vaddr. Status must
// be FileBacked or MmapBacked; a FileBacked page without a file is zero
// filled on first access.
func (as *AddressSpace) Register(vaddr uintptr, status Status, b Backing) (*Page, *kernel.Error) {
	if status != FileBacked && status != MmapBacked {
		return nil, errBadStatus
	}
	if err := as.checkBacking(vaddr, b); err != nil {
		return nil, err
	}

	page := newPage(as, pageKey(vaddr), status, b)
	if !as.pages.insert(page) {
		return nil, errAlreadyMapped
	}
	return page, nil
}

// Unregister destroys the page containing vaddr, writing back its contents
// if it is a dirty mapped page and releasing its frame or swap slot.
func (as *AddressSpace) Unregister(vaddr uintptr) *kernel.Error {
	page, ok := as.pages.remove(vaddr)
	if !ok {
		return errUnmapped
	}
	return as.destroyPage(page)
}

// Destroy tears down the address space: every page descriptor is destroyed
// and its frame or swap slot released. Dirty mapped pages are written back
// first. The first write-back error, if any, is returned after teardown
// completes.
func (as *AddressSpace) Destroy() *kernel.Error {
	as.mu.Lock()
	as.mmaps = nil
	as.mu.Unlock()

	var firstErr *kernel.Error
	pages := as.pages.drain()
	for _, page := range pages {
		if err := as.destroyPage(page); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	log.Debug("address space destroyed", "pages", len(pages))
	return firstErr
}

// destroyPage releases the resources held by a page that has already been
// removed from the page table. It waits for any in-flight load of the page.
func (as *AddressSpace) destroyPage(page *Page) *kernel.Error {
	page.loadMu.Lock()
	defer page.loadMu.Unlock()

	pool := as.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if page.destroyed {
		return nil
	}
	page.destroyed = true

	switch page.status {
	case Resident:
		index, err := pool.residentLocked(page)
		if err != nil {
			return err
		}

		dirty, clearErr := as.mmu.Clear(page.vpage())
		switch {
		case clearErr != nil:
			err = errInconsistentFrame
		case page.origin == originMmap && dirty:
			err = pool.flushLocked(page, pool.arena.Bytes(index))
		}

		page.frame = noFrame
		pool.releaseLocked(index)
		return err
	case Swapped:
		err := pool.swap.Free(page.slot)
		page.slot = swap.NoSlot
		return err
	}

	return nil
}

func (as *AddressSpace) checkBacking(vaddr uintptr, b Backing) *kernel.Error {
	top := as.vm.cfg.UserTop
	if vaddr >= top || top-pageKey(vaddr) < pageSize {
		return errBadRegion
	}
	if b.ReadBytes < 0 || b.ZeroBytes < 0 || b.ReadBytes+b.ZeroBytes != int(pageSize) ||
		(b.ReadBytes > 0 && b.File == nil) || b.Offset < 0 {
		return errBadRegion
	}
	return nil
}
