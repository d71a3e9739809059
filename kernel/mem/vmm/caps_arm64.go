// +build arm64

package vmm

import "nyxos/kernel/mem"

// Capabilities reports the fixed ARM64 MMU/context properties.
func Capabilities() ArchCapabilities {
	return ArchCapabilities{
		HugePages:        true,
		NXBit:            true,
		PortIO:           false,
		CacheCoherentDMA: false,
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
		UserSpaceEnd:     0x0000_ffff_ffff_ffff,
		GPRCount:         31,
		GPRSize:          8,
		ContextSize:      272,
		ArchName:         "arm64",
		ArchBits:         64,
	}
}
