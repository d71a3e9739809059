// +build arm64

package vmm

import "nyxos/kernel"

// tableEntry is the raw 8-byte ARM64 page/block/table descriptor. Bit
// layout: [0]=Valid [1]=Table(1)/Block(0) at levels 0-2, Page(must be 1) at
// L3 [4:2]=AttrIndx [5]=NS [7:6]=AP [9:8]=SH [10]=AF [11]=nG [47:12]=PFN
// [52]=Contig [53]=PXN [54]=UXN [55]=Dirty(software) [56]=COW(software).
type tableEntry uint64

const (
	bitValid = 1 << 0
	bitTable = 1 << 1 // 1 = table/page descriptor, 0 = block descriptor
	bitNS    = 1 << 5
	bitAF    = 1 << 10
	bitNG    = 1 << 11
	bitPXN   = 1 << 53
	bitUXN   = 1 << 54
	bitDirty = 1 << 55
	bitCOW   = 1 << 56

	apShift = 6
	apMask  = uint64(0x3) << apShift
	shShift = 8
	shMask  = uint64(0x3) << shShift
	attrIdxShift = 2
	attrIdxMask  = uint64(0x7) << attrIdxShift

	attrIdxDevice   = 0
	attrIdxNormalWB = 1

	shInnerShareable = 0x3

	pfnMask = uint64(0x0000fffffffff000)
)

func (e tableEntry) present() bool { return e&bitValid != 0 }

// isBlock reports whether e is a block descriptor (valid, Table bit clear).
// Only meaningful for entries above the L3 leaf level.
func (e tableEntry) isBlock() bool { return e&bitValid != 0 && e&bitTable == 0 }

// isTable reports whether e is a present table descriptor pointing at the
// next paging level.
func (e tableEntry) isTable() bool { return e&bitValid != 0 && e&bitTable != 0 }

func (e tableEntry) tableFrame() PAddr { return PAddr(uint64(e) & pfnMask) }

func (e *tableEntry) clear() { *e = 0 }

func (e *tableEntry) setTableDescriptor(frame PAddr) {
	*e = tableEntry(uint64(frame)&pfnMask) | bitValid | bitTable
}

func apFor(flags Flags) uint64 {
	switch {
	case !flags.Has(FlagUser) && flags.Has(FlagWrite):
		return 0x0
	case flags.Has(FlagUser) && flags.Has(FlagWrite):
		return 0x1
	case !flags.Has(FlagUser) && !flags.Has(FlagWrite):
		return 0x2
	default: // USER && !WRITE
		return 0x3
	}
}

func flagsFromAP(ap uint64) (write, user bool) {
	switch ap {
	case 0x0:
		return true, false
	case 0x1:
		return true, true
	case 0x2:
		return false, false
	default:
		return false, true
	}
}

// encode builds a leaf descriptor. page selects the L3 "page" form (bit1=1)
// versus the L1/L2 "block" form (bit1=0); both share every other field.
func encode(phys PAddr, flags Flags, page bool) (tableEntry, *kernel.Error) {
	if uint64(phys)&^pfnMask != 0 {
		return 0, errMisaligned
	}

	var e uint64
	if flags.Has(FlagPresent) {
		e |= bitValid
	}
	if page {
		e |= bitTable
	}
	e |= bitAF
	e |= apFor(flags) << apShift
	e |= uint64(shInnerShareable) << shShift
	if flags.Has(FlagNoCache) {
		e |= uint64(attrIdxDevice) << attrIdxShift
	} else {
		e |= uint64(attrIdxNormalWB) << attrIdxShift
	}
	if flags.Has(FlagUser) {
		e |= bitNG
	}
	if !flags.Has(FlagExec) {
		e |= bitPXN | bitUXN
	}
	if flags.Has(FlagCOW) {
		e |= bitCOW
	}
	e |= uint64(phys) & pfnMask

	return tableEntry(e), nil
}

func makeEntry(phys PAddr, flags Flags) (tableEntry, *kernel.Error) {
	return encode(phys, flags, true)
}

func makeBlockEntry(phys PAddr, flags Flags) (tableEntry, *kernel.Error) {
	return encode(phys, flags, false)
}

// makeLeafEntry builds a leaf descriptor; huge selects the L1/L2 block form
// (bit1 clear) instead of the L3 page form.
func makeLeafEntry(phys PAddr, flags Flags, huge bool) (tableEntry, *kernel.Error) {
	return encode(phys, flags, !huge)
}

func decodeEntry(e tableEntry) (PAddr, Flags) {
	var flags Flags
	if e&bitValid != 0 {
		flags |= FlagPresent
	}

	write, user := flagsFromAP((uint64(e) & apMask) >> apShift)
	if write {
		flags |= FlagWrite
	}
	if user {
		flags |= FlagUser
	}
	if e&bitPXN == 0 && e&bitUXN == 0 {
		flags |= FlagExec
	}
	if (uint64(e)&attrIdxMask)>>attrIdxShift == attrIdxDevice {
		flags |= FlagNoCache
	}
	if e&bitCOW != 0 {
		flags |= FlagCOW
	}
	if e&bitDirty != 0 {
		flags |= FlagDirty
	}
	if e&bitAF != 0 {
		flags |= FlagAccessed
	}
	if e&bitNG == 0 {
		flags |= FlagGlobal
	}
	if e&bitTable == 0 {
		flags |= FlagHuge
	}

	return PAddr(uint64(e) & pfnMask), flags
}

func modifyFlags(e tableEntry, set, clear Flags) tableEntry {
	phys, flags := decodeEntry(e)
	flags = (flags &^ clear) | set
	page := e&bitTable != 0
	newEntry, _ := encode(phys, flags, page)
	return newEntry
}
