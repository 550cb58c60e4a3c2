package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbomb100/Pintos/kernel/mm/vm"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg != Default() {
		t.Fatalf("expected an empty file to yield the defaults; got %+v", cfg)
	}

	if got := cfg.VM(); got != vm.DefaultConfig() {
		t.Fatalf("expected the default vm layout; got %+v", got)
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"user_pages": 4,
		"swap_sectors": 64,
		"swap_path": "/tmp/swap.dsk",
		"max_stack_size": 65536,
		"log_level": "debug"
	}`))
	if err != nil {
		t.Fatal(err)
	}

	exp := Default()
	exp.UserPages = 4
	exp.SwapSectors = 64
	exp.SwapPath = "/tmp/swap.dsk"
	exp.MaxStackSize = 65536
	exp.LogLevel = "debug"

	if cfg != exp {
		t.Fatalf("expected %+v; got %+v", exp, cfg)
	}

	level, levelErr := cfg.Level()
	if levelErr != nil || level != slog.LevelDebug {
		t.Fatalf("expected debug level; got %v, %v", level, levelErr)
	}
	if got := cfg.VM().MaxStackSize; got != 65536 {
		t.Fatalf("expected max stack size 65536; got %d", got)
	}
}

func TestLoadErrors(t *testing.T) {
	specs := []struct {
		contents string
		expMsg   string
	}{
		{`{`, "unable to parse"},
		{`{"user_pages": "many"}`, "unable to parse"},
		{`{"unknown_field": 1}`, "unable to parse"},
		{`{"user_pages": 0}`, "user_pages"},
		{`{"swap_sectors": -1}`, "swap_sectors"},
		{`{"user_top": 4097}`, "user_top"},
		{`{"max_stack_size": 100}`, "max_stack_size"},
		{`{"user_top": 4096, "max_stack_size": 8192}`, "max_stack_size"},
		{`{"log_level": "chatty"}`, "unknown log level"},
	}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			_, err := Load(writeConfig(t, spec.contents))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Message, spec.expMsg) {
				t.Fatalf("expected error message to contain %q; got %q", spec.expMsg, err.Message)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected loading a missing file to fail")
	}
}
