// Package gate describes the CPU state captured when a user thread traps
// into the kernel.
package gate

import (
	"io"

	"github.com/sbomb100/Pintos/kernel/kfmt"
)

// Registers contains a snapshot of the register values that the fault path
// inspects when an exception occurs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64

	// Info contains the exception error code.
	Info uint64

	// The return frame used by IRETQ
	RIP uint64
	RSP uint64

	// CR2 holds the faulting address of a page fault. It is captured with
	// interrupts disabled before the handler runs.
	CR2 uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %016x RBX = %016x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %016x RDX = %016x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %016x RSP = %016x\n", r.RIP, r.RSP)
	kfmt.Fprintf(w, "CR2 = %016x ERR = %016x\n", r.CR2, r.Info)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)
)

// Page fault error code bits stored in Registers.Info.
const (
	// PageFaultPresent is set when the fault was a protection violation
	// on a present page and clear when the page was not present.
	PageFaultPresent = uint64(1 << 0)

	// PageFaultWrite is set when the faulting access was a write.
	PageFaultWrite = uint64(1 << 1)

	// PageFaultUser is set when the access originated in user mode.
	PageFaultUser = uint64(1 << 2)
)

// PageFault returns the register snapshot of a page fault at addr.
func PageFault(addr uintptr, write, user, present bool, rsp uintptr) *Registers {
	regs := &Registers{CR2: uint64(addr), RSP: uint64(rsp)}
	if present {
		regs.Info |= PageFaultPresent
	}
	if write {
		regs.Info |= PageFaultWrite
	}
	if user {
		regs.Info |= PageFaultUser
	}
	return regs
}

// FaultAddress returns the address that triggered a page fault.
func (r *Registers) FaultAddress() uintptr { return uintptr(r.CR2) }

// NotPresent returns true if the fault was caused by a missing mapping.
func (r *Registers) NotPresent() bool { return r.Info&PageFaultPresent == 0 }

// Write returns true if the faulting access was a write.
func (r *Registers) Write() bool { return r.Info&PageFaultWrite != 0 }

// User returns true if the faulting access came from user mode.
func (r *Registers) User() bool { return r.Info&PageFaultUser != 0 }
