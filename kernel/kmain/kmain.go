// Package kmain contains the architecture-neutral kernel entry point invoked
// by the per-platform rt0 assembly once a minimal Go execution environment
// (stack, exception vectors, early console sink) is in place.
package kmain

import (
	"nyxos/kernel"
	"nyxos/kernel/mem/pmm"
	"nyxos/kernel/mem/pmm/allocator"
	"nyxos/kernel/mem/vmm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the only Go symbol exported to the rt0 initialization code. The
// platform-specific boot shim is responsible for parsing its native memory
// map format (multiboot, EFI, device-tree /memory nodes, ...) down to the
// normalized []pmm.Region slice expected here before calling Kmain.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(regions []pmm.Region, kernelStart, kernelEnd uintptr) {
	var err *kernel.Error
	if err = allocator.Init(regions, kernelStart, kernelEnd); err != nil {
		kernel.Panic(err)
	}

	vmm.SetFrameAllocator(vmm.FrameOps{
		Alloc:    allocator.FrameAllocator.AllocFrame,
		Free:     allocator.FrameAllocator.FreeFrame,
		RefInc:   allocator.FrameAllocator.RefInc,
		RefDec:   allocator.FrameAllocator.RefDec,
		RefCount: allocator.FrameAllocator.RefCount,
	})

	if err = vmm.Init(); err != nil {
		kernel.Panic(err)
	}

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}
