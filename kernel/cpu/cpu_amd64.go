package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLBAll flushes every TLB entry for the current address space by
// reloading CR3.
func FlushTLBAll()

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadFaultAddr returns the faulting linear address recorded in CR2 by the
// last page fault.
func ReadFaultAddr() uintptr

// CacheLineSize returns the architecture's data cache line size in bytes.
// x86_64 is cache-coherent with DMA so callers never need to act on this;
// it is reported for symmetry with the ARM64 capability query.
func CacheLineSize() uintptr { return 64 }

// CleanCacheLine, InvalidateCacheLine and CleanInvalidateCacheLine are
// no-ops on x86_64: the platform is assumed cache-coherent with respect to
// DMA, so explicit maintenance is unnecessary but safe to call.
func CleanCacheLine(addr uintptr)           {}
func InvalidateCacheLine(addr uintptr)      {}
func CleanInvalidateCacheLine(addr uintptr) {}
