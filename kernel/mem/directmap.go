package mem

// PhysToKVirt returns the kernel virtual address that directly maps the
// given physical address. The kernel reserves a fixed virtual range,
// starting at DirectMapBase, that maps the whole of physical memory
// one-to-one; any physical frame is therefore always dereferenceable
// through this mapping, regardless of which address space's page tables are
// currently active. DirectMapBase is defined per architecture (see
// constants_amd64.go / constants_arm64.go).
func PhysToKVirt(phys uintptr) uintptr {
	return DirectMapBase + phys
}

// KVirtToPhys is the inverse of PhysToKVirt. Passing it an address outside
// the direct-map region produces a meaningless result; callers must only
// use it on addresses obtained from PhysToKVirt.
func KVirtToPhys(kvirt uintptr) uintptr {
	return kvirt - DirectMapBase
}
