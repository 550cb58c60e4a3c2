// Command vmsim boots the VM subsystem and runs a set of synthetic user
// processes that touch more memory than the user pool holds. Every process
// writes a per-page pattern, reads it back in reverse order and checks it.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sbomb100/Pintos/kernel/config"
	"github.com/sbomb100/Pintos/kernel/fs"
	"github.com/sbomb100/Pintos/kernel/kmain"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/userprog"
)

const (
	segmentBase = uintptr(0x08048000)
	mmapBase    = uintptr(0x10000000)
)

type options struct {
	configPath string
	procs      int
	pages      int
	rounds     int
	mmapPages  int
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[vmsim] error: %s\n", err.Error())
	os.Exit(1)
}

func parseFlags(args []string) (options, error) {
	var opts options

	fset := flag.NewFlagSet("vmsim", flag.ContinueOnError)
	fset.StringVar(&opts.configPath, "config", "", "JSON configuration file (defaults are used when empty)")
	fset.IntVar(&opts.procs, "procs", 4, "number of concurrent processes")
	fset.IntVar(&opts.pages, "pages", 32, "data pages touched by each process")
	fset.IntVar(&opts.rounds, "rounds", 2, "write/verify rounds per process")
	fset.IntVar(&opts.mmapPages, "mmap-pages", 2, "pages of a mapped file touched by each process")
	if err := fset.Parse(args); err != nil {
		return opts, err
	}

	if opts.procs <= 0 || opts.pages <= 0 || opts.rounds <= 0 || opts.mmapPages < 0 {
		return opts, fmt.Errorf("procs, pages and rounds must be positive")
	}
	return opts, nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	sys, kerr := kmain.Boot(cfg, out)
	if kerr != nil {
		return kerr
	}
	defer sys.Shutdown()

	var (
		wg   sync.WaitGroup
		errs = make([]error, opts.procs)
	)
	for i := 0; i < opts.procs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = simulate(sys, i, opts)
		}(i)
	}
	wg.Wait()

	stats := sys.VM.Stats()
	fmt.Fprintf(out, "frames=%d free=%d evictions=%d swap-outs=%d swap-ins=%d write-backs=%d file-loads=%d zero-fills=%d\n",
		stats.Frames, stats.Free, stats.Evictions, stats.SwapOuts, stats.SwapIns,
		stats.WriteBacks, stats.FileLoads, stats.ZeroFills)

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func simulate(sys *kmain.System, id int, opts options) error {
	p := userprog.New(fmt.Sprintf("proc%d worker", id), sys.VM)
	if err := p.SetupStack(); err != nil {
		return err
	}

	as := p.AddressSpace()
	size := opts.pages * int(mm.PageSize)
	if err := as.RegisterSegment(nil, 0, segmentBase, 0, size, true); err != nil {
		p.Exit(-1)
		return err
	}

	var file *fs.MemFile
	if opts.mmapPages > 0 {
		file = fs.NewMemFile(make([]byte, opts.mmapPages*int(mm.PageSize)))
		if _, err := as.Mmap(file, mmapBase); err != nil {
			p.Exit(-1)
			return err
		}
	}

	buf := make([]byte, len(pattern(0, 0, 0)))
	for round := 0; round < opts.rounds; round++ {
		for page := 0; page < opts.pages; page++ {
			if err := p.WriteUser(pageAddr(segmentBase, page), pattern(id, round, page)); err != nil {
				return fmt.Errorf("%s: write page %d: %w", p.Name(), page, err)
			}
		}
		for page := 0; page < opts.mmapPages; page++ {
			if err := p.WriteUser(pageAddr(mmapBase, page), pattern(id, round, page)); err != nil {
				return fmt.Errorf("%s: write mapped page %d: %w", p.Name(), page, err)
			}
		}

		for page := opts.pages - 1; page >= 0; page-- {
			if err := p.ReadUser(pageAddr(segmentBase, page), buf); err != nil {
				return fmt.Errorf("%s: read page %d: %w", p.Name(), page, err)
			}
			if exp := pattern(id, round, page); !bytes.Equal(buf, exp) {
				return fmt.Errorf("%s: page %d: expected %q; got %q", p.Name(), page, exp, buf)
			}
		}
	}

	p.Exit(0)

	// Exit unmaps the file, so its contents must reflect the last round.
	if err := verifyMapped(file.Bytes(), id, opts.rounds-1, opts.mmapPages); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	return nil
}

// verifyMapped checks that data holds the pattern of the given round at the
// offset each mapped page was written to.
func verifyMapped(data []byte, id, round, pages int) error {
	for page := 0; page < pages; page++ {
		exp := pattern(id, round, page)
		off := int(pageAddr(0, page))
		if off+len(exp) > len(data) {
			return fmt.Errorf("mapped page %d: file too short", page)
		}
		if got := data[off : off+len(exp)]; !bytes.Equal(got, exp) {
			return fmt.Errorf("mapped page %d: expected %q; got %q", page, exp, got)
		}
	}
	return nil
}

func pageAddr(base uintptr, page int) uintptr {
	return base + uintptr(page)*mm.PageSize + uintptr(page%64)*8
}

func pattern(id, round, page int) []byte {
	return []byte(fmt.Sprintf("p%03d r%02d g%05d", id%1000, round%100, page%100000))
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		exit(err)
	}
}
