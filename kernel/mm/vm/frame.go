package vm

import (
	"sync"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/mm/pmm"
	"github.com/sbomb100/Pintos/kernel/mm/swap"
)

// noFrame marks a page that does not occupy a frame.
const noFrame = -1

// frameDesc tracks the occupant of one arena frame. The occupant is a
// non-owning reference; pages own their frame binding through Page.frame.
type frameDesc struct {
	occupant *Page
	pinned   bool
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Frames     int
	Free       int
	Evictions  uint64
	SwapOuts   uint64
	SwapIns    uint64
	WriteBacks uint64
	FileLoads  uint64
	ZeroFills  uint64
}

// Pool hands out the frames of the user arena to faulting pages and
// evicts resident pages when the arena is exhausted. A single lock
// serializes allocation and the complete eviction sequence.
type Pool struct {
	mu     sync.Mutex
	arena  *pmm.Arena
	swap   *swap.Store
	frames []frameDesc
	free   []int
	hand   int
	stats  Stats
}

func newPool(arena *pmm.Arena, store *swap.Store) *Pool {
	p := &Pool{
		arena:  arena,
		swap:   store,
		frames: make([]frameDesc, arena.Len()),
		free:   make([]int, 0, arena.Len()),
	}

	// Push frames in reverse so that the lowest index is handed out first.
	for index := arena.Len() - 1; index >= 0; index-- {
		p.free = append(p.free, index)
	}
	return p
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.Frames = len(p.frames)
	stats.Free = len(p.free)
	return stats
}

// acquire returns the index of a frame bound to page. The frame comes from
// the free list or, if that is empty, from evicting one victim. The page and
// the frame are pinned until commit or abort is called.
func (p *Pool) acquire(page *Page) (int, *kernel.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var index int
	if n := len(p.free); n > 0 {
		index = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		var err *kernel.Error
		if index, err = p.evictLocked(); err != nil {
			return noFrame, err
		}
	}

	p.frames[index] = frameDesc{occupant: page, pinned: true}
	page.frame = index
	page.pinned = true
	return index, nil
}

// commit marks page resident in the frame returned by acquire and unpins
// both. The from argument is the status the page was loaded from.
func (p *Pool) commit(page *Page, index int, from Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case from == Swapped:
		p.stats.SwapIns++
	case page.readBytes > 0:
		p.stats.FileLoads++
	default:
		p.stats.ZeroFills++
	}

	page.status = Resident
	page.slot = swap.NoSlot
	page.pinned = false
	p.frames[index].pinned = false
}

// abort undoes an acquire whose load failed. The page keeps its previous
// status.
func (p *Pool) abort(page *Page, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	page.frame = noFrame
	page.pinned = false
	p.releaseLocked(index)
}

// releaseLocked detaches the occupant of a frame, zeroes the frame and
// returns it to the free list.
func (p *Pool) releaseLocked(index int) {
	p.frames[index] = frameDesc{}
	kernel.Memset(p.arena.Bytes(index), 0)
	p.free = append(p.free, index)
}

// residentLocked checks that a resident page and its frame point at each
// other and returns the frame index.
func (p *Pool) residentLocked(page *Page) (int, *kernel.Error) {
	if page.frame < 0 || page.frame >= len(p.frames) || p.frames[page.frame].occupant != page {
		return noFrame, errInconsistentFrame
	}
	return page.frame, nil
}

// occupant returns the page bound to the frame at index.
func (p *Pool) occupant(index int) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[index].occupant
}
