package vm

import (
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/fs"
)

// selectVictim runs the clock algorithm over the in-use frames starting at
// the persistent hand. Pinned frames are skipped. A frame whose accessed bit
// is set gets a second chance: the bit is cleared and the hand moves on. The
// scan is bounded to two full passes; if accesses keep setting bits during
// the second pass, the first unpinned frame it visited is chosen.
//
// selectVictim must be called with the pool lock held.
func (p *Pool) selectVictim() (int, *kernel.Error) {
	var (
		n        = len(p.frames)
		fallback = noFrame
	)

	for step := 0; step < 2*n; step++ {
		index := p.hand
		p.hand = (p.hand + 1) % n

		desc := &p.frames[index]
		if desc.occupant == nil || desc.pinned {
			continue
		}

		if step >= n && fallback == noFrame {
			fallback = index
		}

		page := desc.occupant
		mmu := page.space.mmu
		if !mmu.Accessed(page.vpage()) {
			return index, nil
		}
		mmu.ClearAccessed(page.vpage())
	}

	if fallback != noFrame {
		return fallback, nil
	}
	return noFrame, errNoEvictableFrame
}

// evictLocked selects a victim, moves its contents to their backing store
// and detaches it from the frame. It returns the index of the freed frame,
// which still holds the victim's bytes.
//
// evictLocked must be called with the pool lock held.
func (p *Pool) evictLocked() (int, *kernel.Error) {
	index, err := p.selectVictim()
	if err != nil {
		log.Warn("no evictable frame", "frames", len(p.frames))
		return noFrame, err
	}

	victim := p.frames[index].occupant
	if err := p.writeBackLocked(victim, index); err != nil {
		return noFrame, err
	}

	victim.frame = noFrame
	p.frames[index] = frameDesc{}
	p.stats.Evictions++
	return index, nil
}

// writeBackLocked clears the mapping of a resident page and saves its
// contents: dirty mapped pages are written to their file, clean mapped
// pages are dropped and everything else goes to swap. On failure the
// mapping is reinstalled and the page stays resident. A resident page
// without a mapping is reported as errInconsistentFrame.
func (p *Pool) writeBackLocked(page *Page, index int) *kernel.Error {
	dirty, err := page.space.mmu.Clear(page.vpage())
	if err != nil {
		log.Error("resident page has no mapping", "addr", page.vaddr, "frame", index)
		return errInconsistentFrame
	}
	data := p.arena.Bytes(index)

	switch {
	case page.origin == originMmap && dirty:
		if err := p.flushLocked(page, data); err != nil {
			p.reinstall(page, index, dirty)
			return err
		}
		page.status = MmapBacked
		log.Debug("evicted", "addr", page.vaddr, "to", "file")
	case page.origin == originMmap:
		page.status = MmapBacked
		log.Debug("evicted", "addr", page.vaddr, "to", "none")
	case p.swap == nil:
		p.reinstall(page, index, dirty)
		return errNoSwap
	default:
		slot, err := p.swap.Put(data)
		if err != nil {
			p.reinstall(page, index, dirty)
			return err
		}
		page.slot = slot
		page.status = Swapped
		p.stats.SwapOuts++
		log.Debug("evicted", "addr", page.vaddr, "to", "swap", "slot", slot)
	}

	return nil
}

// flushLocked writes the file-backed part of a mapped page to its file.
func (p *Pool) flushLocked(page *Page, data []byte) *kernel.Error {
	n, err := fs.WriteAt(page.file, data[:page.readBytes], page.offset)
	if err != nil {
		return err
	}
	if n != page.readBytes {
		return errShortWrite
	}
	p.stats.WriteBacks++
	return nil
}

func (p *Pool) reinstall(page *Page, index int, dirty bool) {
	mmu := page.space.mmu
	if err := mmu.Install(page.vpage(), p.arena.Frame(index), page.writable); err != nil {
		log.Error("unable to restore mapping", "addr", page.vaddr, "err", err)
		return
	}
	mmu.SetDirty(page.vpage(), dirty)
}
