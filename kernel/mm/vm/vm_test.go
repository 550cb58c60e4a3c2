package vm

import (
	"fmt"
	"testing"

	"github.com/sbomb100/Pintos/device/block"
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/mm/pmm"
)

func TestNew(t *testing.T) {
	arena, err := pmm.New(pmm.DefaultUserPoolBase, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer arena.Close()

	specs := []struct {
		cfg    Config
		arena  *pmm.Arena
		dev    block.Device
		expErr *kernel.Error
		// expFail is set for errors raised by other packages.
		expFail bool
	}{
		{DefaultConfig(), nil, nil, errNoArena, false},
		{Config{UserTop: 0, MaxStackSize: DefaultMaxStackSize}, arena, nil, errBadConfig, false},
		{Config{UserTop: DefaultUserTop, MaxStackSize: 0}, arena, nil, errBadConfig, false},
		{Config{UserTop: DefaultUserTop + 1, MaxStackSize: DefaultMaxStackSize}, arena, nil, errBadConfig, false},
		{Config{UserTop: 0x10000, MaxStackSize: 0x20000}, arena, nil, errBadConfig, false},
		// a 3-sector device cannot hold a page
		{DefaultConfig(), arena, block.NewMemDevice("swap", 3), nil, true},
		{DefaultConfig(), arena, nil, nil, false},
		{DefaultConfig(), arena, block.NewMemDevice("swap", 64), nil, false},
	}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			v, err := New(spec.cfg, spec.arena, spec.dev)
			switch {
			case spec.expFail:
				if err == nil {
					t.Fatal("expected an error")
				}
			case err != spec.expErr:
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			case err == nil:
				if exp, got := 4, v.Stats().Free; got != exp {
					t.Fatalf("expected %d free frames; got %d", exp, got)
				}
				if spec.dev == nil && v.Swap() != nil {
					t.Fatal("expected no swap store without a swap device")
				}
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	specs := []struct {
		status Status
		exp    string
	}{
		{FileBacked, "file"},
		{MmapBacked, "mmap"},
		{Swapped, "swap"},
		{Resident, "resident"},
		{Status(42), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.status.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
