// +build arm64

package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's base page size in bytes.
	PageSize = Size(1 << PageShift)

	// HugePageShift is equal to log2(HugePageSize).
	HugePageShift = 21

	// HugePageSize defines the size of a huge (2MiB) page on arm64,
	// produced by an L2 block descriptor.
	HugePageSize = Size(1 << HugePageShift)

	// GiantPageShift is equal to log2(GiantPageSize).
	GiantPageShift = 30

	// GiantPageSize defines the size of a giant (1GiB) page on arm64,
	// produced by an L1 block descriptor.
	GiantPageSize = Size(1 << GiantPageShift)
)

// DirectMapBase is the start of the TTBR1_EL1 virtual range reserved for the
// flat direct map of all physical memory on arm64.
const DirectMapBase = uintptr(0xffff000000000000)
