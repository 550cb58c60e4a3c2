// Package vm implements demand paging for user address spaces: a
// supplemental page table per address space, a global pool of user frames
// with clock eviction, swap-backed anonymous memory and the page-fault
// resolver that ties them together.
package vm

import (
	"github.com/sbomb100/Pintos/device/block"
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/kfmt"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/mm/pmm"
	"github.com/sbomb100/Pintos/kernel/mm/swap"
)

const pageSize = mm.PageSize

const (
	// DefaultUserTop is the first address above user space.
	DefaultUserTop = uintptr(0xc0000000)

	// DefaultMaxStackSize is the largest size a user stack may grow to.
	DefaultMaxStackSize = uintptr(8 << 20)

	// DefaultStackSlack is how far below the stack pointer an access may
	// land and still count as stack growth. It covers the 32 bytes pushed
	// by PUSHA before the stack pointer is updated.
	DefaultStackSlack = uintptr(32)
)

var (
	log = kfmt.Module("vm")

	errNoArena           = &kernel.Error{Module: "vm", Message: "no user frame arena supplied"}
	errBadConfig         = &kernel.Error{Module: "vm", Message: "user top and stack size must be page aligned and non-zero"}
	errNoEvictableFrame  = &kernel.Error{Module: "vm", Message: "every frame is pinned; no eviction victim available", Kind: kernel.KindResourceExhausted}
	errInconsistentFrame = &kernel.Error{Module: "vm", Message: "resident page and frame do not point at each other", Kind: kernel.KindInvariantViolation}
	errShortRead         = &kernel.Error{Module: "vm", Message: "short read while loading page", Kind: kernel.KindShortIO}
	errShortWrite        = &kernel.Error{Module: "vm", Message: "short write while saving page", Kind: kernel.KindShortIO}
	errUnmapped          = &kernel.Error{Module: "vm", Message: "access to unmapped address", Kind: kernel.KindInvalidAddress}
	errAccessViolation   = &kernel.Error{Module: "vm", Message: "write access to read-only page", Kind: kernel.KindInvalidAddress}
	errStackLimit        = &kernel.Error{Module: "vm", Message: "stack growth outside the permitted region", Kind: kernel.KindInvalidAddress}
	errPageDestroyed     = &kernel.Error{Module: "vm", Message: "page was unmapped while faulting", Kind: kernel.KindInvalidAddress}
	errAlreadyMapped     = &kernel.Error{Module: "vm", Message: "address already has a page registered"}
	errBadStatus         = &kernel.Error{Module: "vm", Message: "pages can only be registered as file or mmap backed"}
	errBadRegion         = &kernel.Error{Module: "vm", Message: "region must be page aligned, non-empty and inside user space"}
	errNoSuchMapping     = &kernel.Error{Module: "vm", Message: "unknown mapping id"}
	errNoSwap            = &kernel.Error{Module: "vm", Message: "page needs swap space but no swap device is configured", Kind: kernel.KindResourceExhausted}
)

// MMU is the address-space mapping capability the subsystem drives. It is
// implemented by the page directory of each user address space.
type MMU interface {
	// Install maps page to frame, writable or read-only. Installing over an
	// existing mapping fails.
	Install(page mm.Page, frame mm.Frame, writable bool) *kernel.Error

	// Mapped returns true if a mapping for page exists.
	Mapped(page mm.Page) bool

	// Clear removes the mapping for page and returns its final dirty bit.
	Clear(page mm.Page) (bool, *kernel.Error)

	// Accessed returns the hardware accessed bit for page.
	Accessed(page mm.Page) bool

	// ClearAccessed resets the hardware accessed bit for page.
	ClearAccessed(page mm.Page)

	// Dirty returns the hardware dirty bit for page.
	Dirty(page mm.Page) bool

	// SetDirty overrides the hardware dirty bit for page.
	SetDirty(page mm.Page, dirty bool)
}

// Config holds the user address space layout.
type Config struct {
	// UserTop is the first address above user space; the stack grows
	// down from it.
	UserTop uintptr

	// MaxStackSize bounds how far below UserTop the stack may grow.
	MaxStackSize uintptr

	// StackSlack is how far below the stack pointer a faulting access may
	// be and still grow the stack.
	StackSlack uintptr
}

// DefaultConfig returns the layout of a 32-bit x86 user address space.
func DefaultConfig() Config {
	return Config{
		UserTop:      DefaultUserTop,
		MaxStackSize: DefaultMaxStackSize,
		StackSlack:   DefaultStackSlack,
	}
}

// VM owns the frame pool and the swap store shared by every address space.
type VM struct {
	cfg  Config
	pool *Pool
}

// New initializes the frame pool from the frames of arena and the swap store
// from swapDev. A nil swapDev is allowed; evicting a page that needs swap
// space then fails with a resource exhaustion error.
func New(cfg Config, arena *pmm.Arena, swapDev block.Device) (*VM, *kernel.Error) {
	if arena == nil {
		return nil, errNoArena
	}
	if cfg.UserTop == 0 || cfg.MaxStackSize == 0 || !mm.IsPageAligned(cfg.UserTop) ||
		!mm.IsPageAligned(cfg.MaxStackSize) || cfg.MaxStackSize > cfg.UserTop {
		return nil, errBadConfig
	}

	var store *swap.Store
	if swapDev != nil {
		var err *kernel.Error
		if store, err = swap.New(swapDev); err != nil {
			return nil, err
		}
	}

	log.Info("frame pool ready", "frames", arena.Len())
	return &VM{
		cfg:  cfg,
		pool: newPool(arena, store),
	}, nil
}

// Config returns the address space layout.
func (vm *VM) Config() Config {
	return vm.cfg
}

// Stats returns a snapshot of the pool counters.
func (vm *VM) Stats() Stats {
	return vm.pool.Stats()
}

// Swap returns the swap store or nil if the VM runs without swap.
func (vm *VM) Swap() *swap.Store {
	return vm.pool.swap
}

// Arena returns the user frame arena.
func (vm *VM) Arena() *pmm.Arena {
	return vm.pool.arena
}

// NewAddressSpace returns an empty address space whose mappings are
// installed through mmu.
func (vm *VM) NewAddressSpace(mmu MMU) *AddressSpace {
	return &AddressSpace{
		vm:    vm,
		pool:  vm.pool,
		mmu:   mmu,
		pages: newPageTable(),
	}
}
