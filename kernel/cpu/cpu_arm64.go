// +build arm64

package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry invalidates the TLB entry for virtAddr across inner
// shareable observers and executes the required synchronization barriers.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLBAll invalidates every TLB entry for the current address space.
func FlushTLBAll()

// SwitchPDT installs pdtPhysAddr as TTBR0_EL1 and issues the required
// data-synchronization and instruction-synchronization barriers.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently held in TTBR0_EL1.
func ActivePDT() uintptr

// ReadFaultAddr returns the faulting virtual address recorded in FAR_EL1.
func ReadFaultAddr() uintptr

// ReadESR returns the exception syndrome recorded in ESR_EL1 for the last
// synchronous exception.
func ReadESR() uintptr

// CacheLineSize returns the architecture's data cache line size in bytes.
func CacheLineSize() uintptr

// CleanCacheLine writes a dirty cache line back to the point of coherency.
func CleanCacheLine(addr uintptr)

// InvalidateCacheLine discards a cache line, forcing a re-fetch.
func InvalidateCacheLine(addr uintptr)

// CleanInvalidateCacheLine cleans then invalidates a cache line.
func CleanInvalidateCacheLine(addr uintptr)
