// Package pmm manages the physical memory backing the user frame pool.
package pmm

import (
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/mm"
)

// DefaultUserPoolBase is the physical address where the user pool starts when
// the bootstrap code does not supply one. It sits above the first 4M that are
// reserved for the kernel image and the kernel pool.
const DefaultUserPoolBase = uintptr(0x00400000)

var (
	// allocFn and freeFn are replaced by tests; the default implementation
	// reserves host memory for the arena.
	allocFn = allocArena
	freeFn  = freeArena

	errNoFrames      = &kernel.Error{Module: "pmm", Message: "user pool must contain at least one frame"}
	errUnalignedBase = &kernel.Error{Module: "pmm", Message: "user pool base address must be page-aligned"}
	errArenaClosed   = &kernel.Error{Module: "pmm", Message: "user pool has been released"}
)

// Arena is a contiguous run of physical frames that make up the user pool.
// Frames are addressed either by their physical frame number (mm.Frame) or by
// their index inside the arena.
type Arena struct {
	base  mm.Frame
	count int
	mem   []byte
}

// New reserves an arena of frameCount frames whose first frame lives at the
// physical address base.
func New(base uintptr, frameCount int) (*Arena, *kernel.Error) {
	if frameCount <= 0 {
		return nil, errNoFrames
	}
	if !mm.IsPageAligned(base) {
		return nil, errUnalignedBase
	}

	mem, err := allocFn(frameCount * int(mm.PageSize))
	if err != nil {
		return nil, &kernel.Error{Module: "pmm", Message: "unable to reserve user pool: " + err.Error(), Kind: kernel.KindResourceExhausted}
	}

	return &Arena{
		base:  mm.FrameFromAddress(base),
		count: frameCount,
		mem:   mem,
	}, nil
}

// Len returns the number of frames in the arena.
func (a *Arena) Len() int {
	return a.count
}

// Frame returns the physical frame at the given arena index.
func (a *Arena) Frame(index int) mm.Frame {
	return a.base + mm.Frame(index)
}

// Index returns the arena index of a physical frame and whether the frame
// belongs to the arena.
func (a *Arena) Index(frame mm.Frame) (int, bool) {
	if frame < a.base || frame >= a.base+mm.Frame(a.count) {
		return 0, false
	}
	return int(frame - a.base), true
}

// Bytes returns the contents of the frame at the given arena index. The
// returned slice aliases the arena.
func (a *Arena) Bytes(index int) []byte {
	start := index * int(mm.PageSize)
	return a.mem[start : start+int(mm.PageSize) : start+int(mm.PageSize)]
}

// FrameBytes returns the contents of a physical frame or false if the frame is
// not part of the arena.
func (a *Arena) FrameBytes(frame mm.Frame) ([]byte, bool) {
	index, ok := a.Index(frame)
	if !ok || a.mem == nil {
		return nil, false
	}
	return a.Bytes(index), true
}

// Close returns the arena memory to the host. The arena must not be used
// afterwards.
func (a *Arena) Close() *kernel.Error {
	if a.mem == nil {
		return errArenaClosed
	}

	mem := a.mem
	a.mem = nil
	if err := freeFn(mem); err != nil {
		return &kernel.Error{Module: "pmm", Message: "unable to release user pool: " + err.Error()}
	}
	return nil
}
