package vm

import (
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/fs"
)

// HandleFault resolves a page fault at addr. The write flag reports the
// access type and esp is the user stack pointer at the time of the fault.
// Callers must reject null and kernel addresses before calling HandleFault.
//
// A nil result means the faulting access can be retried. Any error is fatal
// for the process that triggered the fault.
func (as *AddressSpace) HandleFault(addr uintptr, write bool, esp uintptr) *kernel.Error {
	page, ok := as.pages.Lookup(addr)
	if !ok {
		if !as.nearStackPointer(addr, esp) {
			log.Debug("fault on unmapped address", "addr", addr, "esp", esp)
			return errUnmapped
		}

		var err *kernel.Error
		if page, err = as.GrowStack(addr); err != nil {
			log.Debug("stack growth refused", "addr", addr, "esp", esp)
			return err
		}
	}

	return as.load(page, write)
}

// nearStackPointer returns true if addr is at most StackSlack bytes below
// the stack pointer.
func (as *AddressSpace) nearStackPointer(addr, esp uintptr) bool {
	return addr+as.vm.cfg.StackSlack >= esp
}

// load makes page resident. Loads of the same page are serialized; a fault
// that finds the page already resident returns immediately.
func (as *AddressSpace) load(page *Page, write bool) *kernel.Error {
	if write && !page.writable {
		return errAccessViolation
	}

	page.loadMu.Lock()
	defer page.loadMu.Unlock()

	pool := as.pool

	pool.mu.Lock()
	if page.destroyed {
		pool.mu.Unlock()
		return errPageDestroyed
	}
	if page.status == Resident {
		_, err := pool.residentLocked(page)
		pool.mu.Unlock()
		return err
	}
	status, slot := page.status, page.slot
	pool.mu.Unlock()

	// The frame is pinned from here until commit so the load below can
	// run without the pool lock.
	index, err := pool.acquire(page)
	if err != nil {
		return err
	}

	data := pool.arena.Bytes(index)
	if status == Swapped {
		err = pool.swap.Read(slot, data)
	} else {
		err = as.readBacking(page, data)
	}
	if err != nil {
		pool.abort(page, index)
		return err
	}

	if err = as.mmu.Install(page.vpage(), pool.arena.Frame(index), page.writable); err != nil {
		pool.abort(page, index)
		return err
	}

	if status == Swapped {
		if err = pool.swap.Free(slot); err != nil {
			log.Error("unable to free swap slot", "slot", slot, "err", err)
		}
	}

	pool.commit(page, index, status)
	log.Debug("page loaded", "addr", page.vaddr, "from", status, "frame", index)
	return nil
}

// readBacking fills data with the initial contents of a file backed or
// anonymous page.
func (as *AddressSpace) readBacking(page *Page, data []byte) *kernel.Error {
	if page.readBytes > 0 {
		n, err := fs.ReadAt(page.file, data[:page.readBytes], page.offset)
		if err != nil {
			return err
		}
		if n != page.readBytes {
			return errShortRead
		}
	}

	kernel.Memset(data[page.readBytes:], 0)
	return nil
}
