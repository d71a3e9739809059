package vmm

import (
	"unsafe"

	"nyxos/kernel"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
)

// FrameAllocatorFn is a function that can allocate physical frames. It is
// supplied by the caller of Map/MapHuge so the vmm package never depends on
// a concrete allocator; CreateSpace/CloneSpace allocate through the FrameOps
// registered via SetFrameAllocator instead.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// physToKVirtFn resolves a physical address to the kernel-virtual address
// that directly maps it. Mocked by tests, which run without a real
// direct-mapped physical range.
var physToKVirtFn = mem.PhysToKVirt

// SetPhysToKVirt overrides the physical-to-kernel-virtual resolver used to
// dereference page-table pages. Production boot code never calls this — the
// default resolves through the architecture's flat direct map. It exists for
// hosted tooling (benchmarks, fuzzers) that runs as an ordinary process and
// therefore has no direct-mapped physical range of its own, mirroring
// SetFrameAllocator's role for the frame-allocator side of the same problem.
func SetPhysToKVirt(fn func(uintptr) uintptr) {
	physToKVirtFn = fn
}

// huge level is the walk level (1) at which 2 MiB block/huge descriptors
// are installed; leaf level is always 0.
const hugeLevel = 1

type walkStatus uint8

const (
	statusHit walkStatus = iota
	statusAbsent
	statusHitBlock
	statusMalformed
)

// walkResult describes where a walk stopped.
type walkResult struct {
	status    walkStatus
	level     uint8
	entry     *tableEntry
	blockBase PAddr
}

// entryAt returns a pointer to the page-table entry for virt at level within
// the table rooted at tableAddr, dereferencing the table page through the
// physical direct map.
func entryAt(tableAddr PAddr, virt VAddr, level uint8) *tableEntry {
	return entryAtIndex(tableAddr, index(virt, level))
}

// entryAtIndex returns a pointer to the idx'th entry of the table stored at
// tableAddr, dereferenced through the physical direct map.
func entryAtIndex(tableAddr PAddr, idx uintptr) *tableEntry {
	base := physToKVirtFn(uintptr(tableAddr))
	return (*tableEntry)(unsafe.Pointer(base + idx*entrySize))
}

// blockBaseFor returns the base physical address of the block/huge
// descriptor e: its decoded physical address, since block-aligned entries
// store their base directly in the PFN field.
func blockBaseFor(e tableEntry) PAddr {
	phys, _ := decodeEntry(e)
	return phys
}

// blockSizeForLevel returns the size spanned by a block/huge descriptor
// found at the given walk level: level 1 is a 2 MiB huge page (ARM64 L2 /
// x86_64 PD), level 2 is a 1 GiB giant page (ARM64 L1 / x86_64 PDPT). No
// other level is ever hit-block (the walker never installs a block
// descriptor at the root level).
func blockSizeForLevel(level uint8) uintptr {
	if level == 2 {
		return uintptr(mem.GiantPageSize)
	}
	return hugePageSize
}

// walk descends from root toward virt. When allocate is true, missing
// intermediate tables are allocated, zeroed and installed; on allocator
// failure the error is returned and any already-installed intermediate
// tables are left in place (spec-sanctioned leak, reclaimed at
// DestroySpace).
func walk(root PAddr, virt VAddr, allocate bool, allocFn FrameAllocatorFn) (walkResult, *kernel.Error) {
	tableAddr := root

	for l := int8(pageLevels - 1); l >= 0; l-- {
		level := uint8(l)
		entry := entryAt(tableAddr, virt, level)

		if level == 0 {
			if !entry.present() {
				return walkResult{status: statusAbsent, level: level, entry: entry}, nil
			}
			return walkResult{status: statusHit, level: level, entry: entry}, nil
		}

		if !entry.present() {
			if !allocate {
				return walkResult{status: statusAbsent, level: level, entry: entry}, nil
			}

			frame, err := allocFn()
			if err != nil {
				return walkResult{}, err
			}

			mem.Memset(physToKVirtFn(frame.Address()), 0, mem.PageSize)
			entry.setTableDescriptor(PAddr(frame.Address()))
			tableAddr = PAddr(frame.Address())
			continue
		}

		if entry.isBlock() {
			return walkResult{status: statusHitBlock, level: level, entry: entry, blockBase: blockBaseFor(*entry)}, nil
		}

		if entry.isTable() {
			tableAddr = entry.tableFrame()
			continue
		}

		return walkResult{status: statusMalformed, level: level, entry: entry}, nil
	}

	// Unreachable: the level == 0 branch above always returns.
	return walkResult{status: statusMalformed}, nil
}
