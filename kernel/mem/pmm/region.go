package pmm

import "nyxos/kernel/mem"

// Region describes an available physical memory range. Boot-time memory-map
// parsing (multiboot, EFI, device-tree /memory nodes, ...) is an external
// collaborator: whatever format the bootloader uses, it is normalized down
// to a list of Regions before being handed to Init.
type Region struct {
	// Start is the physical address of the first byte of the region.
	Start uintptr

	// Length is the size of the region in bytes.
	Length mem.Size
}

// End returns the physical address one byte past the end of the region.
func (r Region) End() uintptr {
	return r.Start + uintptr(r.Length)
}
