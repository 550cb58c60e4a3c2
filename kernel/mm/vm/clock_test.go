package vm

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/fs"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/mm/vmm"
)

// stickyMMU reports every page as recently accessed, emulating user threads
// that touch their pages faster than the clock hand clears the bits.
type stickyMMU struct {
	*vmm.PageDirectory
	accessedCalls int
}

func (m *stickyMMU) Accessed(mm.Page) bool {
	m.accessedCalls++
	return true
}

// lostMMU forgets mappings as soon as they are cleared, so a clear always
// reports that nothing was mapped.
type lostMMU struct {
	*vmm.PageDirectory
}

func (lostMMU) Clear(mm.Page) (bool, *kernel.Error) {
	return false, vmm.ErrInvalidMapping
}

// readOnlyFile rejects every write.
type readOnlyFile struct {
	*fs.MemFile
}

func (readOnlyFile) WriteAt([]byte, int64) (int, error) {
	return 0, errors.New("read-only file system")
}

func TestClockScenario(t *testing.T) {
	const (
		addrA = uintptr(0x10000000)
		addrB = uintptr(0x10001000)
		addrC = uintptr(0x10002000)
	)

	specs := []struct {
		mmapA       bool
		clearB      bool
		expVictimA  bool
		expVictimSt Status
	}{
		// both pages recently used: the hand clears both bits and takes A
		{false, false, true, Swapped},
		// B not used since it was loaded: A gets a second chance, B is taken
		{false, true, false, Swapped},
		// a dirty mapped victim goes back to its file
		{true, false, true, MmapBacked},
	}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			h := newHarness(t, 2, 4)

			file := fs.NewMemFile(make([]byte, pageSize))
			if spec.mmapA {
				if _, err := h.as.Mmap(file, addrA); err != nil {
					t.Fatal(err)
				}
			} else {
				h.anon(addrA)
			}
			h.anon(addrB)
			h.anon(addrC)

			h.write(addrA, pattern('A'))
			h.write(addrB, pattern('B'))

			if exp, got := 0, h.vm.Stats().Free; got != exp {
				t.Fatalf("expected the pool to be full; %d free", got)
			}

			if spec.clearB {
				h.pd.ClearAccessed(mm.PageFromAddress(addrB))
			}

			h.write(addrC, pattern('C'))

			a, _ := h.as.Lookup(addrA)
			b, _ := h.as.Lookup(addrB)
			c, _ := h.as.Lookup(addrC)

			victim, survivor, expData := a, b, pattern('A')
			if !spec.expVictimA {
				victim, survivor, expData = b, a, pattern('B')
			}

			if got := victim.Status(); got != spec.expVictimSt {
				t.Fatalf("expected victim status %v; got %v", spec.expVictimSt, got)
			}
			if survivor.Status() != Resident || c.Status() != Resident {
				t.Fatalf("expected survivor and C to be resident; got %v and %v", survivor.Status(), c.Status())
			}
			if exp, got := uint64(1), h.vm.Stats().Evictions; got != exp {
				t.Fatalf("expected exactly %d eviction; got %d", exp, got)
			}

			// The evicted contents are recoverable from the new backing.
			switch spec.expVictimSt {
			case Swapped:
				slot, ok := victim.Slot()
				if !ok {
					t.Fatal("expected the victim to hold a swap slot")
				}
				onDisk := make([]byte, pageSize)
				if err := h.vm.Swap().Read(slot, onDisk); err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(onDisk, expData) {
					t.Fatal("swap slot contents do not match the evicted page")
				}
			case MmapBacked:
				if !bytes.Equal(file.Bytes(), expData) {
					t.Fatal("file contents do not match the evicted page")
				}
				if exp, got := 0, h.vm.Swap().InUse(); got != exp {
					t.Fatalf("expected no swap slot to be used; %d in use", got)
				}
			}

			if got := h.read(victim.Addr()); !bytes.Equal(got, expData) {
				t.Fatal("victim contents do not survive the round trip")
			}
			h.checkConsistency()
		})
	}
}

func TestCleanMmapEvictionSkipsWriteBack(t *testing.T) {
	h := newHarness(t, 1, 2)

	file := fs.NewMemFile(pattern(7)[:3000])
	if _, err := h.as.Mmap(readOnlyFile{file}, 0x10000000); err != nil {
		t.Fatal(err)
	}
	h.anon(0x20000)

	got := h.read(0x10000000)
	if !bytes.Equal(got[:3000], pattern(7)[:3000]) {
		t.Fatal("mapped page does not match the file")
	}
	for _, b := range got[3000:] {
		if b != 0 {
			t.Fatal("expected the tail of the last mapped page to be zero")
		}
	}

	// The mapped page is clean so evicting it performs no I/O and the
	// read-only file never sees a write.
	h.write(0x20000, pattern(1))

	page, _ := h.as.Lookup(0x10000000)
	if page.Status() != MmapBacked {
		t.Fatalf("expected the page to be mmap backed; got %v", page.Status())
	}
	if stats := h.vm.Stats(); stats.WriteBacks != 0 || stats.SwapOuts != 0 {
		t.Fatalf("expected no write-back; got %+v", stats)
	}
}

func TestDirtyMmapEvictionFailure(t *testing.T) {
	h := newHarness(t, 1, 2)

	file := readOnlyFile{fs.NewMemFile(make([]byte, pageSize))}
	if _, err := h.as.Mmap(file, 0x10000000); err != nil {
		t.Fatal(err)
	}
	h.anon(0x20000)
	h.write(0x10000000, pattern(1))

	err := h.as.HandleFault(0x20000, true, DefaultUserTop)
	if err == nil || err.Kind != kernel.KindShortIO {
		t.Fatalf("expected a short I/O error; got %v", err)
	}

	page, _ := h.as.Lookup(0x10000000)
	if page.Status() != Resident {
		t.Fatalf("expected the victim to stay resident; got %v", page.Status())
	}
	if !h.pd.Mapped(mm.PageFromAddress(0x10000000)) || !h.pd.Dirty(mm.PageFromAddress(0x10000000)) {
		t.Fatal("expected the victim mapping to be reinstalled as dirty")
	}
	if got := h.read(0x10000000); !bytes.Equal(got, pattern(1)) {
		t.Fatal("expected victim contents to be preserved")
	}
	h.checkConsistency()
}

func TestEvictionSkipsPinnedFrames(t *testing.T) {
	h := newHarness(t, 2, 8)
	pool := h.vm.pool

	// A is mid-load: it holds a pinned frame that was never committed.
	a := h.anon(0x10000)
	pinned, err := pool.acquire(a)
	if err != nil {
		t.Fatal(err)
	}

	h.anon(0x20000)
	h.anon(0x30000)

	for round := 0; round < 6; round++ {
		addr := uintptr(0x20000)
		if round%2 == 1 {
			addr = 0x30000
		}
		h.write(addr, pattern(byte(round)))

		if got := pool.occupant(pinned); got != a {
			t.Fatalf("round %d: pinned frame was evicted", round)
		}
		h.checkConsistency()
	}

	// Pinning the remaining frame leaves no victim.
	b, _ := h.as.Lookup(0x20000)
	if b.Status() == Resident {
		t.Fatal("expected the last write to have evicted 0x20000")
	}
	c, _ := h.as.Lookup(0x30000)
	pool.mu.Lock()
	pool.frames[c.frame].pinned = true
	c.pinned = true
	pool.mu.Unlock()

	err = h.as.HandleFault(0x20000, false, DefaultUserTop)
	if err != errNoEvictableFrame {
		t.Fatalf("expected errNoEvictableFrame; got %v", err)
	}
	if err.Kind != kernel.KindResourceExhausted {
		t.Fatalf("expected a resource exhaustion error; got %v", err.Kind)
	}

	if err := h.pd.Install(a.vpage(), h.vm.Arena().Frame(pinned), true); err != nil {
		t.Fatal(err)
	}
	pool.commit(a, pinned, FileBacked)
	if err := h.as.HandleFault(0x20000, false, DefaultUserTop); err != nil {
		t.Fatalf("expected the fault to succeed once a frame is unpinned; got %v", err)
	}
}

func TestClockTwoPassBound(t *testing.T) {
	h := newHarness(t, 3, 8)

	mmu := &stickyMMU{PageDirectory: vmm.NewPageDirectory()}
	as := h.vm.NewAddressSpace(mmu)

	for i := uintptr(0); i < 4; i++ {
		if _, err := as.Register(0x10000+i*pageSize, FileBacked, Backing{ZeroBytes: int(pageSize), Writable: true}); err != nil {
			t.Fatal(err)
		}
	}
	for i := uintptr(0); i < 3; i++ {
		if err := as.HandleFault(0x10000+i*pageSize, true, DefaultUserTop); err != nil {
			t.Fatal(err)
		}
	}

	if err := as.HandleFault(0x10000+3*pageSize, true, DefaultUserTop); err != nil {
		t.Fatal(err)
	}

	if exp := 2 * 3; mmu.accessedCalls != exp {
		t.Fatalf("expected the scan to stop after %d steps; got %d", exp, mmu.accessedCalls)
	}

	// The first unpinned frame of the second pass is frame 0.
	first, _ := as.Lookup(0x10000)
	if first.Status() != Swapped {
		t.Fatalf("expected the fallback victim to be the first page; got %v", first.Status())
	}
}

func TestResidentPageWithoutMapping(t *testing.T) {
	h := newHarness(t, 1, 4)
	as := h.vm.NewAddressSpace(lostMMU{PageDirectory: vmm.NewPageDirectory()})

	for _, addr := range []uintptr{0x10000, 0x11000} {
		if _, err := as.Register(addr, FileBacked, Backing{ZeroBytes: int(pageSize), Writable: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := as.HandleFault(0x10000, true, DefaultUserTop); err != nil {
		t.Fatal(err)
	}

	if err := as.HandleFault(0x11000, true, DefaultUserTop); err != errInconsistentFrame {
		t.Fatalf("expected errInconsistentFrame; got %v", err)
	}

	a, _ := as.Lookup(0x10000)
	b, _ := as.Lookup(0x11000)
	if a.Status() != Resident || b.Status() != FileBacked {
		t.Fatalf("expected both pages to keep their status; got %v and %v", a.Status(), b.Status())
	}
	if stats := h.vm.Stats(); stats.Evictions != 0 || stats.SwapOuts != 0 || stats.Free != 0 {
		t.Fatalf("expected no eviction to take place; got %+v", stats)
	}

	if err := as.Destroy(); err != errInconsistentFrame {
		t.Fatalf("expected teardown to report errInconsistentFrame; got %v", err)
	}
	if exp, got := 1, h.vm.Stats().Free; got != exp {
		t.Fatalf("expected teardown to release the frame; %d frames free", got)
	}
}
