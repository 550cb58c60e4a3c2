// Package config loads the boot parameters of the virtual memory subsystem
// from a JSON file.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/kfmt"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/mm/vm"
)

const (
	// DefaultUserPages is the number of frames in the user pool.
	DefaultUserPages = 64

	// DefaultSwapSectors is the size of the swap device: 4MB worth of
	// sectors.
	DefaultSwapSectors = 8192
)

// Config holds the boot parameters. Unset fields take their default value.
type Config struct {
	// UserPages is the number of frames in the user pool.
	UserPages int `json:"user_pages"`

	// SwapSectors is the capacity of the swap device in sectors.
	SwapSectors int `json:"swap_sectors"`

	// SwapPath is a host file used as the swap device. An empty path
	// keeps swap in memory.
	SwapPath string `json:"swap_path"`

	// UserTop is the first address above user space.
	UserTop uint64 `json:"user_top"`

	// MaxStackSize bounds the user stack in bytes.
	MaxStackSize uint64 `json:"max_stack_size"`

	// StackSlack is how far below the stack pointer an access may fault
	// and still grow the stack.
	StackSlack uint64 `json:"stack_slack"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `json:"log_level"`
}

// Default returns the default boot parameters.
func Default() Config {
	return Config{
		UserPages:    DefaultUserPages,
		SwapSectors:  DefaultSwapSectors,
		UserTop:      uint64(vm.DefaultUserTop),
		MaxStackSize: uint64(vm.DefaultMaxStackSize),
		StackSlack:   uint64(vm.DefaultStackSlack),
		LogLevel:     "info",
	}
}

// Load reads the JSON file at path on top of the defaults and validates the
// result.
func Load(path string) (Config, *kernel.Error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return cfg, &kernel.Error{Module: "config", Message: "unable to open " + path + ": " + err.Error()}
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, &kernel.Error{Module: "config", Message: "unable to parse " + path + ": " + err.Error()}
	}

	if kerr := cfg.Validate(); kerr != nil {
		return cfg, kerr
	}

	kfmt.Module("config").Debug("configuration loaded", "path", path, "user_pages", cfg.UserPages, "swap_sectors", cfg.SwapSectors)
	return cfg, nil
}

// Validate checks that the parameters describe a usable system.
func (c Config) Validate() *kernel.Error {
	switch {
	case c.UserPages <= 0:
		return invalid("user_pages must be positive")
	case c.SwapSectors < 0:
		return invalid("swap_sectors must not be negative")
	case c.UserTop == 0 || !mm.IsPageAligned(uintptr(c.UserTop)):
		return invalid("user_top must be a non-zero multiple of " + strconv.Itoa(int(mm.PageSize)))
	case c.MaxStackSize == 0 || !mm.IsPageAligned(uintptr(c.MaxStackSize)) || c.MaxStackSize > c.UserTop:
		return invalid("max_stack_size must be page aligned and fit below user_top")
	}

	if _, err := c.Level(); err != nil {
		return invalid(err.Error())
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() (slog.Level, error) {
	return kfmt.ParseLogLevel(c.LogLevel)
}

// VM returns the address space layout.
func (c Config) VM() vm.Config {
	return vm.Config{
		UserTop:      uintptr(c.UserTop),
		MaxStackSize: uintptr(c.MaxStackSize),
		StackSlack:   uintptr(c.StackSlack),
	}
}

func invalid(msg string) *kernel.Error {
	return &kernel.Error{Module: "config", Message: "invalid configuration: " + msg}
}
