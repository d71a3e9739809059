// +build amd64

package vmm

import "nyxos/kernel/cpu"

// CleanRange, InvalidateRange and CleanInvalidateRange are no-ops on
// x86_64: DMA is cache-coherent on this target, so callers may invoke them
// unconditionally from shared cross-architecture code paths without
// needing to special-case amd64.
func CleanRange(addr VAddr, length uintptr)           { maintainRange(addr, length, cpu.CleanCacheLine) }
func InvalidateRange(addr VAddr, length uintptr)      { maintainRange(addr, length, cpu.InvalidateCacheLine) }
func CleanInvalidateRange(addr VAddr, length uintptr) { maintainRange(addr, length, cpu.CleanInvalidateCacheLine) }

func maintainRange(addr VAddr, length uintptr, op func(uintptr)) {
	lineSize := cpu.CacheLineSize()
	start := uintptr(addr) &^ (lineSize - 1)
	end := uintptr(addr) + length
	for line := start; line < end; line += lineSize {
		op(line)
	}
}
