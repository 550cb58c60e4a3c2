package vm

import (
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/fs"
	"github.com/sbomb100/Pintos/kernel/mm"
)

// RegisterSegment registers the pages of an executable segment starting at
// the page-aligned address vaddr. The segment consists of readBytes bytes
// read from file at offset followed by zeroBytes zero bytes; their sum must
// be a multiple of the page size. Nothing is read until the pages fault. If
// any page of the segment is already registered, no page is.
func (as *AddressSpace) RegisterSegment(file fs.File, offset int64, vaddr uintptr, readBytes, zeroBytes int, writable bool) *kernel.Error {
	if !mm.IsPageAligned(vaddr) || readBytes < 0 || zeroBytes < 0 ||
		(readBytes+zeroBytes)%int(pageSize) != 0 || readBytes+zeroBytes == 0 {
		return errBadRegion
	}

	var pages []*Page
	for readBytes > 0 || zeroBytes > 0 {
		pageRead := readBytes
		if pageRead > int(pageSize) {
			pageRead = int(pageSize)
		}
		pageZero := int(pageSize) - pageRead

		b := Backing{Offset: offset, ReadBytes: pageRead, ZeroBytes: pageZero, Writable: writable}
		if pageRead > 0 {
			b.File = file
		}
		if err := as.checkBacking(vaddr, b); err != nil {
			return err
		}
		pages = append(pages, newPage(as, vaddr, FileBacked, b))

		readBytes -= pageRead
		zeroBytes -= pageZero
		offset += int64(pageRead)
		vaddr += pageSize
	}

	if !as.pages.insertAll(pages) {
		return errAlreadyMapped
	}

	log.Debug("segment registered", "addr", pages[0].vaddr, "pages", len(pages), "writable", writable)
	return nil
}

// Mmap maps the whole of file at the page-aligned address vaddr. The pages
// are loaded on demand and dirty pages are written back to file when they
// are evicted or unmapped. The mapping must not overlap registered pages or
// the stack region.
func (as *AddressSpace) Mmap(file fs.File, vaddr uintptr) (MapID, *kernel.Error) {
	if file == nil || vaddr == 0 || !mm.IsPageAligned(vaddr) {
		return -1, errBadRegion
	}

	length := fs.Length(file)
	if length <= 0 {
		return -1, errBadRegion
	}

	count := int(mm.PageCount(uintptr(length)))
	stackBottom := as.vm.cfg.UserTop - as.vm.cfg.MaxStackSize
	if vaddr >= stackBottom || uintptr(count) > (stackBottom-vaddr)>>mm.PageShift {
		return -1, errBadRegion
	}

	pages := make([]*Page, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * int64(pageSize)
		readBytes := int(pageSize)
		if remaining := length - offset; remaining < int64(pageSize) {
			readBytes = int(remaining)
		}

		pages = append(pages, newPage(as, vaddr+uintptr(i)*pageSize, MmapBacked, Backing{
			File:      file,
			Offset:    offset,
			ReadBytes: readBytes,
			ZeroBytes: int(pageSize) - readBytes,
			Writable:  true,
		}))
	}

	if !as.pages.insertAll(pages) {
		return -1, errAlreadyMapped
	}

	as.mu.Lock()
	if as.mmaps == nil {
		as.mmaps = make(map[MapID]mapping)
	}
	id := as.nextID
	as.nextID++
	as.mmaps[id] = mapping{addr: vaddr, pages: count}
	as.mu.Unlock()

	log.Debug("file mapped", "id", id, "addr", vaddr, "pages", count)
	return id, nil
}

// Munmap removes a mapping created by Mmap, writing back its dirty pages.
// Every page is released even if a write-back fails; the first error is
// returned.
func (as *AddressSpace) Munmap(id MapID) *kernel.Error {
	as.mu.Lock()
	m, ok := as.mmaps[id]
	delete(as.mmaps, id)
	as.mu.Unlock()

	if !ok {
		return errNoSuchMapping
	}

	var firstErr *kernel.Error
	for i := 0; i < m.pages; i++ {
		page, ok := as.pages.remove(m.addr + uintptr(i)*pageSize)
		if !ok {
			continue
		}
		if err := as.destroyPage(page); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	log.Debug("file unmapped", "id", id, "addr", m.addr, "pages", m.pages)
	return firstErr
}

// GrowStack registers a zero-filled, writable stack page covering addr. The
// address must lie within the maximum stack size below the top of user
// space. If the page already exists it is returned unchanged.
func (as *AddressSpace) GrowStack(addr uintptr) (*Page, *kernel.Error) {
	cfg := as.vm.cfg
	if addr >= cfg.UserTop || addr < cfg.UserTop-cfg.MaxStackSize {
		return nil, errStackLimit
	}

	page := newPage(as, pageKey(addr), FileBacked, Backing{ZeroBytes: int(pageSize), Writable: true})
	page.stack = true
	if !as.pages.insert(page) {
		// Another thread of the process grew the stack first.
		if existing, ok := as.pages.Lookup(addr); ok {
			return existing, nil
		}
		return nil, errAlreadyMapped
	}
	return page, nil
}

// SetupStack creates and faults in the topmost stack page and returns the
// initial user stack pointer.
func (as *AddressSpace) SetupStack() (uintptr, *kernel.Error) {
	top := as.vm.cfg.UserTop

	page, err := as.GrowStack(top - pageSize)
	if err != nil {
		return 0, err
	}
	if err = as.load(page, true); err != nil {
		return 0, err
	}
	return top, nil
}
