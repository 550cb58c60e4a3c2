// Package userprog runs the user side of a process on top of the virtual
// memory subsystem: it turns user memory accesses into page faults, resolves
// them and routes unrecoverable faults to process termination.
package userprog

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sbomb100/Pintos/kernel"
	"github.com/sbomb100/Pintos/kernel/gate"
	"github.com/sbomb100/Pintos/kernel/kfmt"
	"github.com/sbomb100/Pintos/kernel/mm"
	"github.com/sbomb100/Pintos/kernel/mm/vm"
	"github.com/sbomb100/Pintos/kernel/mm/vmm"
)

var (
	log = kfmt.Module("userprog")

	// panicFn is invoked for faults that indicate kernel bugs. Tests
	// replace it to observe the panic without halting.
	panicFn = kfmt.Panic

	nextPID atomic.Int32

	errBadAddress = &kernel.Error{Module: "userprog", Message: "access to null or kernel address", Kind: kernel.KindInvalidAddress}
	errExited     = &kernel.Error{Module: "userprog", Message: "process has exited", Kind: kernel.KindInvalidAddress}
	errRefault    = &kernel.Error{Module: "userprog", Message: "access keeps faulting after the fault was resolved", Kind: kernel.KindResourceExhausted}
)

// maxRefaults bounds how often one access may fault. Under heavy eviction
// pressure a freshly loaded page can be evicted by another thread before
// the access is retried.
const maxRefaults = 64

// Process is a user process: an address space, the page directory its
// mappings live in and the state of its (single) user thread.
type Process struct {
	pid  int
	name string
	vm   *vm.VM
	pd   *vmm.PageDirectory
	as   *vm.AddressSpace

	esp atomic.Uintptr

	exitOnce sync.Once
	exited   atomic.Bool
	status   int
}

// New creates a process with an empty address space.
func New(name string, v *vm.VM) *Process {
	pd := vmm.NewPageDirectory()
	p := &Process{
		pid:  int(nextPID.Add(1)),
		name: name,
		vm:   v,
		pd:   pd,
		as:   v.NewAddressSpace(pd),
	}
	p.esp.Store(v.Config().UserTop)
	return p
}

// PID returns the process identifier.
func (p *Process) PID() int { return p.pid }

// Name returns the program name of the process without its arguments.
func (p *Process) Name() string {
	if i := strings.IndexByte(p.name, ' '); i >= 0 {
		return p.name[:i]
	}
	return p.name
}

// AddressSpace returns the virtual memory state of the process.
func (p *Process) AddressSpace() *vm.AddressSpace { return p.as }

// PageDirectory returns the page directory of the process.
func (p *Process) PageDirectory() *vmm.PageDirectory { return p.pd }

// StackPointer returns the user stack pointer.
func (p *Process) StackPointer() uintptr { return p.esp.Load() }

// SetStackPointer updates the user stack pointer.
func (p *Process) SetStackPointer(esp uintptr) { p.esp.Store(esp) }

// Exited returns true once the process has terminated, together with its
// exit status.
func (p *Process) Exited() (bool, int) {
	if !p.exited.Load() {
		return false, 0
	}
	return true, p.status
}

// SetupStack maps the initial stack page and points the stack pointer at the
// top of user space.
func (p *Process) SetupStack() *kernel.Error {
	esp, err := p.as.SetupStack()
	if err != nil {
		p.fatal(err, nil)
		return err
	}
	p.esp.Store(esp)
	return nil
}

// PageFault handles a page fault raised by the user thread of the process.
// Faults on null or kernel addresses, or faults the resolver cannot satisfy,
// terminate the process. A nil result means the access can be retried.
func (p *Process) PageFault(regs *gate.Registers) *kernel.Error {
	if p.exited.Load() {
		return errExited
	}

	addr := regs.FaultAddress()
	if addr == 0 || addr >= p.vm.Config().UserTop {
		p.fatal(errBadAddress, regs)
		return errBadAddress
	}

	if err := p.as.HandleFault(addr, regs.Write(), uintptr(regs.RSP)); err != nil {
		p.fatal(err, regs)
		return err
	}
	return nil
}

// Exit terminates the process with the given status and tears down its
// address space. Only the first call has any effect.
func (p *Process) Exit(status int) {
	p.exitOnce.Do(func() {
		p.status = status
		p.exited.Store(true)

		kfmt.Printf("%s: exit(%d)\n", p.Name(), status)
		if err := p.as.Destroy(); err != nil {
			log.Warn("address space teardown incomplete", "pid", p.pid, "err", err)
		}
	})
}

// fatal terminates the process after an unrecoverable fault. Invariant
// violations are kernel bugs and additionally halt the kernel.
func (p *Process) fatal(err *kernel.Error, regs *gate.Registers) {
	if err.Kind == kernel.KindInvariantViolation {
		nonRecoverablePageFault(regs, err)
	}

	log.Info("killing process", "pid", p.pid, "name", p.Name(), "reason", err.Message, "kind", err.Kind)
	p.Exit(-1)
}

func nonRecoverablePageFault(regs *gate.Registers, err *kernel.Error) {
	if regs != nil {
		kfmt.Printf("\nPage fault while accessing address: 0x%016x\nReason: ", regs.FaultAddress())
		switch regs.Info & (gate.PageFaultPresent | gate.PageFaultWrite) {
		case 0:
			kfmt.Printf("read from non-present page")
		case gate.PageFaultPresent:
			kfmt.Printf("page protection violation (read)")
		case gate.PageFaultWrite:
			kfmt.Printf("write to non-present page")
		default:
			kfmt.Printf("page protection violation (write)")
		}

		kfmt.Printf("\n\nRegisters:\n")
		regs.DumpTo(kfmt.GetOutputSink())
	}

	panicFn(err)
}

// ReadUser copies len(buf) bytes starting at the user address addr into buf,
// faulting pages in as needed.
func (p *Process) ReadUser(addr uintptr, buf []byte) *kernel.Error {
	return p.copyUser(addr, buf, false)
}

// WriteUser copies data to user memory starting at addr, faulting pages in as
// needed.
func (p *Process) WriteUser(addr uintptr, data []byte) *kernel.Error {
	return p.copyUser(addr, data, true)
}

// copyUser moves bytes between buf and user memory one page at a time. Each
// page-sized chunk is copied while the mapping is held, like a single user
// instruction; a missing or read-only mapping raises a page fault.
func (p *Process) copyUser(addr uintptr, buf []byte, write bool) *kernel.Error {
	arena := p.vm.Arena()

	for len(buf) > 0 {
		chunk := int(mm.PageSize - mm.PageOffset(addr))
		if chunk > len(buf) {
			chunk = len(buf)
		}

		for attempt := 0; ; attempt++ {
			if p.exited.Load() {
				return errExited
			}

			err := p.pd.AccessFunc(addr, write, func(frame mm.Frame) {
				data, _ := arena.FrameBytes(frame)
				data = data[mm.PageOffset(addr):]
				if write {
					kernel.Memcopy(buf[:chunk], data)
				} else {
					kernel.Memcopy(data, buf[:chunk])
				}
			})
			if err == nil {
				break
			}

			if attempt == maxRefaults {
				p.fatal(errRefault, nil)
				return errRefault
			}

			regs := gate.PageFault(addr, write, true, err == vmm.ErrProtection, p.esp.Load())
			if err := p.PageFault(regs); err != nil {
				return err
			}
		}

		addr += uintptr(chunk)
		buf = buf[chunk:]
	}

	return nil
}
