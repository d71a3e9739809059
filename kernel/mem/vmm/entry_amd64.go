// +build amd64

package vmm

import "nyxos/kernel"

// tableEntry is the raw 8-byte x86_64 page-table entry word. Bit layout per
// the AMD64/Intel SDM: [0]=P [1]=R/W [2]=U/S [3]=PWT [4]=PCD [5]=A [6]=D
// [7]=PS [8]=G [9]=COW(software) [51:12]=PFN [63]=NX.
type tableEntry uint64

const (
	bitPresent = 1 << 0
	bitWrite   = 1 << 1
	bitUser    = 1 << 2
	bitPCD     = 1 << 4
	bitA       = 1 << 5
	bitD       = 1 << 6
	bitPS      = 1 << 7
	bitGlobal  = 1 << 8
	bitCOW     = 1 << 9
	bitNX      = 1 << 63

	pfnMask = uint64(0x000ffffffffff000)
)

func (e tableEntry) present() bool { return e&bitPresent != 0 }

// isBlock reports whether e is a huge/giant page descriptor. Only
// meaningful for entries located above the leaf level.
func (e tableEntry) isBlock() bool { return e&bitPresent != 0 && e&bitPS != 0 }

// isTable reports whether e is a present, non-block descriptor pointing at
// the next paging level.
func (e tableEntry) isTable() bool { return e&bitPresent != 0 && e&bitPS == 0 }

func (e tableEntry) tableFrame() PAddr { return PAddr(uint64(e) & pfnMask) }

func (e *tableEntry) clear() { *e = 0 }

// setTableDescriptor installs e as a present, writable pointer to the next
// paging-level table stored at frame.
func (e *tableEntry) setTableDescriptor(frame PAddr) {
	*e = tableEntry(uint64(frame)&pfnMask) | bitPresent | bitWrite | bitUser
}

func makeEntry(phys PAddr, flags Flags) (tableEntry, *kernel.Error) {
	if uint64(phys)&^pfnMask != 0 {
		return 0, errMisaligned
	}

	var e uint64
	if flags.Has(FlagPresent) {
		e |= bitPresent
	}
	if flags.Has(FlagWrite) {
		e |= bitWrite
	}
	if flags.Has(FlagUser) {
		e |= bitUser
	}
	if flags.Has(FlagNoCache) {
		e |= bitPCD
	}
	if flags.Has(FlagGlobal) {
		e |= bitGlobal
	}
	if flags.Has(FlagHuge) {
		e |= bitPS
	}
	if flags.Has(FlagCOW) {
		e |= bitCOW
	}
	if !flags.Has(FlagExec) {
		e |= bitNX
	}
	e |= uint64(phys) & pfnMask

	return tableEntry(e), nil
}

func decodeEntry(e tableEntry) (PAddr, Flags) {
	var flags Flags
	if e&bitPresent != 0 {
		flags |= FlagPresent
	}
	if e&bitWrite != 0 {
		flags |= FlagWrite
	}
	if e&bitUser != 0 {
		flags |= FlagUser
	}
	if e&bitNX == 0 {
		flags |= FlagExec
	}
	if e&bitPCD != 0 {
		flags |= FlagNoCache
	}
	if e&bitCOW != 0 {
		flags |= FlagCOW
	}
	if e&bitD != 0 {
		flags |= FlagDirty
	}
	if e&bitA != 0 {
		flags |= FlagAccessed
	}
	if e&bitGlobal != 0 {
		flags |= FlagGlobal
	}
	if e&bitPS != 0 {
		flags |= FlagHuge
	}

	return PAddr(uint64(e) & pfnMask), flags
}

// makeLeafEntry builds a leaf descriptor; huge selects the 2 MiB block form
// by folding FlagHuge into the PS bit.
func makeLeafEntry(phys PAddr, flags Flags, huge bool) (tableEntry, *kernel.Error) {
	if huge {
		flags |= FlagHuge
	}
	return makeEntry(phys, flags)
}

func modifyFlags(e tableEntry, set, clear Flags) tableEntry {
	phys, flags := decodeEntry(e)
	flags = (flags &^ clear) | set
	newEntry, _ := makeEntry(phys, flags)
	return newEntry
}
