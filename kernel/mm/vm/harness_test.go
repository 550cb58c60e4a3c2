package vm

import (
	"testing"

	"github.com/sbomb100/Pintos/device/block"
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/mm/pmm"
	"github.com/sbomb100/Pintos/kernel/mm/swap"
	"github.com/sbomb100/Pintos/kernel/mm/vmm"
)

var errStillFaulting = &kernel.Error{Module: "test", Message: "access keeps faulting after the fault was resolved"}

// harness wires a VM to a single address space backed by a software page
// directory so tests can perform user accesses.
type harness struct {
	t  *testing.T
	vm *VM
	pd *vmm.PageDirectory
	as *AddressSpace
}

func newHarness(t *testing.T, frames, swapSlots int) *harness {
	t.Helper()

	arena, err := pmm.New(pmm.DefaultUserPoolBase, frames)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = arena.Close() })

	var dev block.Device
	if swapSlots > 0 {
		dev = block.NewMemDevice("swap", block.Sector(swapSlots*swap.SectorsPerSlot))
	}

	v, err := New(DefaultConfig(), arena, dev)
	if err != nil {
		t.Fatal(err)
	}

	pd := vmm.NewPageDirectory()
	return &harness{t: t, vm: v, pd: pd, as: v.NewAddressSpace(pd)}
}

// newSpace returns a second address space sharing the harness VM.
func (h *harness) newSpace() (*AddressSpace, *vmm.PageDirectory) {
	pd := vmm.NewPageDirectory()
	return h.vm.NewAddressSpace(pd), pd
}

// access emulates a user access to addr, resolving a page fault if the
// address is not mapped. It returns the frame contents from addr to the end
// of its page.
func access(as *AddressSpace, pd *vmm.PageDirectory, addr uintptr, write bool, esp uintptr) ([]byte, *kernel.Error) {
	for attempt := 0; attempt < 2; attempt++ {
		frame, err := pd.Access(addr, write)
		switch err {
		case nil:
			data, ok := as.vm.Arena().FrameBytes(frame)
			if !ok {
				return nil, errInconsistentFrame
			}
			return data[mm.PageOffset(addr):], nil
		case vmm.ErrInvalidMapping:
			if err := as.HandleFault(addr, write, esp); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
	return nil, errStillFaulting
}

func (h *harness) write(addr uintptr, data []byte) {
	h.t.Helper()

	page, err := access(h.as, h.pd, addr, true, DefaultUserTop)
	if err != nil {
		h.t.Fatalf("write to %#x: %v", addr, err)
	}
	copy(page, data)
}

func (h *harness) read(addr uintptr) []byte {
	h.t.Helper()

	page, err := access(h.as, h.pd, addr, false, DefaultUserTop)
	if err != nil {
		h.t.Fatalf("read from %#x: %v", addr, err)
	}
	return append([]byte(nil), page...)
}

// anon registers a writable zero-filled page at addr.
func (h *harness) anon(addr uintptr) *Page {
	h.t.Helper()

	page, err := h.as.Register(addr, FileBacked, Backing{ZeroBytes: int(pageSize), Writable: true})
	if err != nil {
		h.t.Fatal(err)
	}
	return page
}

// checkConsistency verifies that frames and resident pages point at each
// other and that no page occupies more than one frame.
func (h *harness) checkConsistency() {
	h.t.Helper()

	pool := h.vm.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	seen := make(map[*Page]int)
	for index, desc := range pool.frames {
		if desc.occupant == nil {
			continue
		}
		if prev, dup := seen[desc.occupant]; dup {
			h.t.Fatalf("page %#x occupies frames %d and %d", desc.occupant.vaddr, prev, index)
		}
		seen[desc.occupant] = index

		if desc.occupant.frame != index {
			h.t.Fatalf("frame %d is occupied by page %#x which points at frame %d", index, desc.occupant.vaddr, desc.occupant.frame)
		}
	}

	h.as.pages.Walk(func(p *Page) bool {
		if p.status != Resident {
			if p.frame != noFrame && !p.pinned {
				h.t.Fatalf("non-resident page %#x holds frame %d", p.vaddr, p.frame)
			}
			return true
		}
		if index, ok := seen[p]; !ok || index != p.frame {
			h.t.Fatalf("resident page %#x is not the occupant of its frame %d", p.vaddr, p.frame)
		}
		return true
	})
}

func pattern(seed byte) []byte {
	data := make([]byte, pageSize)
	for i := range data {
		data[i] = seed ^ byte(i*7)
	}
	return data
}
