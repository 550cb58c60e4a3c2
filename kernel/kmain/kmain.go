// Package kmain brings up the virtual memory subsystem: console and logging,
// the user frame pool, the swap device and the frame pool/swap store that sit
// on top of them.
package kmain

import (
	"io"

	"github.com/sbomb100/Pintos/device"
	"github.com/sbomb100/Pintos/device/block"
	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/config"
	"github.com/sbomb100/Pintos/kernel/kfmt"
	"github.com/sbomb100/Pintos/kernel/mm/pmm"
	"github.com/sbomb100/Pintos/kernel/mm/vm"
)

var (
	// The following functions are mocked by tests.
	newArenaFn       = pmm.New
	openFileDeviceFn = openFileDevice
	initDriversFn    = device.InitDrivers
	setOutputSinkFn  = kfmt.SetOutputSink
)

// System is a booted virtual memory subsystem.
type System struct {
	VM    *vm.VM
	Arena *pmm.Arena
	Swap  block.Device
}

// Boot attaches the console, configures logging, reserves the user pool and
// initializes the swap device and the VM. On failure everything acquired so
// far is released.
func Boot(cfg config.Config, console io.Writer) (*System, *kernel.Error) {
	if console != nil {
		setOutputSinkFn(console)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	kfmt.SetLogLevel(level)

	arena, err := newArenaFn(pmm.DefaultUserPoolBase, cfg.UserPages)
	if err != nil {
		return nil, err
	}

	swapDev, err := openSwap(cfg)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}

	if swapDev != nil {
		if err = initDriversFn(kfmt.GetOutputSink(), swapDev); err != nil {
			closeDevice(swapDev)
			_ = arena.Close()
			return nil, err
		}
		_ = block.SetRole(block.RoleSwap, swapDev)
	}

	v, err := vm.New(cfg.VM(), arena, block.ByRole(block.RoleSwap))
	if err != nil {
		_ = block.SetRole(block.RoleSwap, nil)
		closeDevice(swapDev)
		_ = arena.Close()
		return nil, err
	}

	kfmt.Printf("vm: %d user pages, %d swap sectors\n", cfg.UserPages, cfg.SwapSectors)
	return &System{VM: v, Arena: arena, Swap: swapDev}, nil
}

// Shutdown releases the swap device and the user pool.
func (s *System) Shutdown() {
	if s.Swap != nil {
		_ = block.SetRole(block.RoleSwap, nil)
		closeDevice(s.Swap)
	}
	_ = s.Arena.Close()
}

// openSwap returns the swap device described by cfg or nil when swap is
// disabled.
func openSwap(cfg config.Config) (block.Device, *kernel.Error) {
	if cfg.SwapSectors == 0 {
		return nil, nil
	}
	if cfg.SwapPath == "" {
		return block.NewMemDevice("swap", block.Sector(cfg.SwapSectors)), nil
	}
	return openFileDeviceFn(cfg.SwapPath, block.Sector(cfg.SwapSectors))
}

func openFileDevice(path string, sectors block.Sector) (block.Device, *kernel.Error) {
	dev, err := block.OpenFileDevice("swap", path, sectors)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func closeDevice(dev block.Device) {
	if c, ok := dev.(io.Closer); ok {
		_ = c.Close()
	}
}
