package vmm

import (
	"nyxos/kernel"
	"nyxos/kernel/kfmt/early"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
)

// FrameOps collects the frame-allocator primitives the vmm package needs in
// order to grow page tables and service copy-on-write faults. The concrete
// implementation (currently allocator.BitmapAllocator) is wired in once,
// early in boot, via SetFrameAllocator.
type FrameOps struct {
	Alloc    FrameAllocatorFn
	Free     func(pmm.Frame) *kernel.Error
	RefInc   func(pmm.Frame) uint32
	RefDec   func(pmm.Frame) *kernel.Error
	RefCount func(pmm.Frame) uint32
}

var (
	// frames holds the allocator hooks registered via SetFrameAllocator.
	frames FrameOps

	// ReservedZeroedFrame is a single physical frame, zeroed once at Init
	// time and shared read-only (+COW) by every lazily-allocated,
	// not-yet-touched page until the first write forces a private copy.
	ReservedZeroedFrame pmm.Frame

	// protectReservedZeroedPage is flipped to true once
	// ReservedZeroedFrame has been handed out; it exists purely so a
	// future assertion can catch an attempt to map the shared zero frame
	// as writable.
	protectReservedZeroedPage bool
)

// SetFrameAllocator registers the frame-management primitives the vmm
// package uses to grow page tables, service COW faults and tear down
// address spaces. It must be called once, before Init.
func SetFrameAllocator(ops FrameOps) {
	frames = ops
}

// Init reserves the shared zero frame used for lazy allocation. Exception
// vector wiring for page faults is performed by the caller, which has
// access to the interrupt subsystem; HandleFault is the entry point it
// should invoke from the page-fault handler.
func Init() *kernel.Error {
	return reserveZeroedFrame()
}

// reserveZeroedFrame allocates and zero-fills ReservedZeroedFrame through
// the direct physical map, without needing a temporary page-table mapping.
func reserveZeroedFrame() *kernel.Error {
	frame, err := frames.Alloc()
	if err != nil {
		return err
	}

	mem.Memset(physToKVirtFn(frame.Address()), 0, mem.PageSize)
	ReservedZeroedFrame = frame
	protectReservedZeroedPage = true
	return nil
}

// MapTemporary returns a kernel-virtual address through which frame's
// contents can be read or written without establishing a mapping in any
// user address space. The direct physical map makes every frame always
// reachable this way, so unlike the teacher's recursive-mapping scheme no
// actual page-table edit or TLB shootdown is required.
func MapTemporary(frame pmm.Frame) VAddr {
	return VAddr(physToKVirtFn(frame.Address()))
}

// errUnrecoverableFault is the sentinel kernel.Panic is invoked with when
// HandleFault cannot resolve a fault as a COW write.
var errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "unrecoverable page fault"}

// HandleFault attempts to resolve a page fault recorded by raw (the
// architecture's native syndrome: the x86_64 error code pushed on the
// exception stack, or ARM64's ESR_EL1) against space. instrPtr is the
// physical address of the faulting instruction, as recovered by the caller
// from its interrupt frame (RIP / ELR_EL1) — it is used only to enrich the
// diagnostic dump if the fault turns out to be unrecoverable. HandleFault
// returns true if the fault was a COW write that has now been resolved and
// the faulting instruction can be retried; it never returns false in
// production, since every unresolvable path funnels into kernel.Panic
// first — the return value exists so tests can observe the outcome
// without a mocked Panic halting the test binary.
func HandleFault(space Space, raw uint64, instrPtr PAddr) bool {
	fault := ParseFault(raw)
	if !IsCowFault(fault) {
		nonRecoverablePageFault(fault, instrPtr)
		return false
	}

	root := resolveSpace(space)
	result, err := walk(PAddr(root), fault.Addr, false, nil)
	if err != nil || (result.status != statusHit && result.status != statusHitBlock) {
		nonRecoverablePageFault(fault, instrPtr)
		return false
	}

	phys, flags := decodeEntry(*result.entry)
	if !flags.Has(FlagCOW) {
		nonRecoverablePageFault(fault, instrPtr)
		return false
	}

	owner := pmm.Frame(uintptr(phys) >> mem.PageShift)
	if frames.RefCount(owner) <= 1 {
		*result.entry = modifyFlags(*result.entry, FlagWrite, FlagCOW)
		flushTLBEntryFn(uintptr(fault.Addr))
		return true
	}

	private, allocErr := frames.Alloc()
	if allocErr != nil {
		nonRecoverablePageFault(fault, instrPtr)
		return false
	}

	mem.Memcopy(physToKVirtFn(private.Address()), physToKVirtFn(uintptr(phys)), mem.PageSize)
	entry, mkErr := makeLeafEntry(PAddr(private.Address()), flags|FlagWrite, flags.Has(FlagHuge))
	if mkErr != nil {
		frames.Free(private)
		nonRecoverablePageFault(fault, instrPtr)
		return false
	}
	entry = modifyFlags(entry, 0, FlagCOW)
	*result.entry = entry

	if decErr := frames.RefDec(owner); decErr != nil {
		nonRecoverablePageFault(fault, instrPtr)
		return false
	}
	flushTLBEntryFn(uintptr(fault.Addr))
	return true
}

// nonRecoverablePageFault logs a diagnostic dump — the decoded fault and a
// best-effort disassembly of the faulting instruction — then funnels into
// kernel.Panic, mirroring the teacher's vmm.nonRecoverablePageFault.
func nonRecoverablePageFault(fault Fault, instrPtr PAddr) {
	early.Printf("[vmm] unrecoverable page fault: addr=0x%x present=%t write=%t user=%t exec=%t\n",
		uintptr(fault.Addr), fault.Present, fault.Write, fault.User, fault.Exec)
	DiagnoseFault(instrPtr)
	kernel.Panic(errUnrecoverableFault)
}
