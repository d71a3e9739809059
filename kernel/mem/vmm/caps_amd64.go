// +build amd64

package vmm

import "nyxos/kernel/mem"

// Capabilities reports the fixed x86_64 MMU/context properties.
func Capabilities() ArchCapabilities {
	return ArchCapabilities{
		HugePages:        true,
		NXBit:            true,
		PortIO:           true,
		CacheCoherentDMA: true,
		IOMMU:            false,
		SMP:              false,
		FPU:              true,
		SIMD:             true,
		PageTableLevels:  pageLevels,
		PageSizes:        []uintptr{pageSize, hugePageSize, uintptr(mem.GiantPageSize)},
		PhysAddrBits:     48,
		VirtAddrBits:     48,
		PhysAddrMax:      uintptr(1) << 48,
		VirtAddrMax:      0xffff_ffff_ffff_ffff,
		KernelBase:       mem.DirectMapBase,
		UserSpaceEnd:     0x0000_7fff_ffff_ffff,
		GPRCount:         16,
		GPRSize:          8,
		ContextSize:      176,
		ArchName:         "x86_64",
		ArchBits:         64,
	}
}
