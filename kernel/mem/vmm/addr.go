package vmm

import "nyxos/kernel"

// VAddr is a virtual memory address. Map and MapHuge reject addresses that
// are not canonical for the running architecture with errNonCanonical.
// Unmap, UnmapHuge, Query, Protect and IsHuge do not check canonical form;
// they use only the per-level index bits of the address.
type VAddr uintptr

// PAddr is a physical memory address.
type PAddr uintptr

const (
	// InvalidPAddr is returned by operations that fail to resolve a
	// physical address (e.g. a failed Query or Unmap).
	InvalidPAddr = PAddr(^uintptr(0))

	// InvalidVAddr marks the absence of a virtual address.
	InvalidVAddr = VAddr(^uintptr(0))
)

var (
	errMisaligned    = &kernel.Error{Module: "vmm", Message: "address is not page-aligned"}
	errNonCanonical  = &kernel.Error{Module: "vmm", Message: "virtual address is not canonical"}
	errBlockCollision = &kernel.Error{Module: "vmm", Message: "mapping collides with an existing block/huge entry"}
	errOutOfFrames   = &kernel.Error{Module: "vmm", Message: "frame allocator is out of memory"}
)

// ErrInvalidMapping is returned by Unmap/UnmapHuge when the walk does not
// terminate at a present leaf of the expected kind.
var ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "address does not resolve to a valid mapping"}

// aligned4K reports whether addr is aligned to the base 4 KiB page size.
func aligned4K(addr uintptr) bool {
	return addr&(pageSize-1) == 0
}

// aligned2M reports whether addr is aligned to the huge (2 MiB) page size.
func aligned2M(addr uintptr) bool {
	return addr&(hugePageSize-1) == 0
}
