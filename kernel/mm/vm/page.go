package vm

import (
	"sync"

	"github.com/sbomb100/Pintos/kernel/fs"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/mm/swap"
)

// Status describes where the contents of a page currently live.
type Status uint8

const (
	// FileBacked pages are loaded from a file segment or zero-filled on
	// first access.
	FileBacked Status = iota

	// MmapBacked pages are loaded from, and written back to, a mapped file.
	MmapBacked

	// Swapped pages hold their contents in a swap slot.
	Swapped

	// Resident pages occupy a frame and have an installed mapping.
	Resident
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case FileBacked:
		return "file"
	case MmapBacked:
		return "mmap"
	case Swapped:
		return "swap"
	case Resident:
		return "resident"
	default:
		return "unknown"
	}
}

// origin records which kind of region a page was registered for. Unlike the
// status it never changes, so eviction uses it to pick a backing store.
type origin uint8

const (
	originSegment origin = iota
	originMmap
	originAnon
)

// Backing describes the initial contents of a page: ReadBytes bytes read from
// File at Offset followed by ZeroBytes zero bytes. A nil File denotes an
// anonymous zero-filled page.
type Backing struct {
	File      fs.File
	Offset    int64
	ReadBytes int
	ZeroBytes int
	Writable  bool
}

// Page is the supplemental page table entry for one virtual page.
type Page struct {
	vaddr     uintptr
	space     *AddressSpace
	origin    origin
	file      fs.File
	offset    int64
	readBytes int
	zeroBytes int
	writable  bool
	stack     bool

	// loadMu serializes fault-in and destruction of the page.
	loadMu sync.Mutex

	// The following fields are guarded by the pool lock.
	status    Status
	frame     int
	slot      swap.Slot
	pinned    bool
	destroyed bool
}

func newPage(space *AddressSpace, vaddr uintptr, status Status, b Backing) *Page {
	p := &Page{
		vaddr:     vaddr,
		space:     space,
		file:      b.File,
		offset:    b.Offset,
		readBytes: b.ReadBytes,
		zeroBytes: b.ZeroBytes,
		writable:  b.Writable,
		status:    status,
		frame:     noFrame,
		slot:      swap.NoSlot,
	}

	switch {
	case status == MmapBacked:
		p.origin = originMmap
	case b.File == nil:
		p.origin = originAnon
	default:
		p.origin = originSegment
	}
	return p
}

// Addr returns the page-aligned virtual address of the page.
func (p *Page) Addr() uintptr { return p.vaddr }

// Writable returns true if user code may write to the page.
func (p *Page) Writable() bool { return p.writable }

// Stack returns true if the page was created by stack growth.
func (p *Page) Stack() bool { return p.stack }

// Status returns the current status of the page.
func (p *Page) Status() Status {
	pool := p.space.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return p.status
}

// Frame returns the physical frame holding a resident page.
func (p *Page) Frame() (mm.Frame, bool) {
	pool := p.space.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if p.status != Resident {
		return mm.InvalidFrame, false
	}
	return pool.arena.Frame(p.frame), true
}

// Slot returns the swap slot holding a swapped page.
func (p *Page) Slot() (swap.Slot, bool) {
	pool := p.space.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	return p.slot, p.status == Swapped
}

func (p *Page) vpage() mm.Page {
	return mm.PageFromAddress(p.vaddr)
}
