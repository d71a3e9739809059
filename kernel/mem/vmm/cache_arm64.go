// +build arm64

package vmm

import "nyxos/kernel/cpu"

// CleanRange writes dirty cache lines covering [addr, addr+length) back to
// the point of coherency; used before a DMA engine reads from memory.
func CleanRange(addr VAddr, length uintptr) { maintainRange(addr, length, cpu.CleanCacheLine) }

// InvalidateRange discards cache lines covering the range, forcing a
// re-fetch; used after a DMA engine writes to memory.
func InvalidateRange(addr VAddr, length uintptr) { maintainRange(addr, length, cpu.InvalidateCacheLine) }

// CleanInvalidateRange cleans then invalidates, for bidirectional DMA
// buffers.
func CleanInvalidateRange(addr VAddr, length uintptr) {
	maintainRange(addr, length, cpu.CleanInvalidateCacheLine)
}

func maintainRange(addr VAddr, length uintptr, op func(uintptr)) {
	lineSize := cpu.CacheLineSize()
	start := uintptr(addr) &^ (lineSize - 1)
	end := uintptr(addr) + length

	for line := start; line < end; line += lineSize {
		op(line)
	}
}
