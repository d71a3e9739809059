package vmm

import (
	"nyxos/kernel"
	"nyxos/kernel/mem"
)

// Space identifies an address space by the physical address of its root
// page table. SpaceCurrent asks an operation to substitute the currently
// active root; SpaceInvalid is returned on failure.
type Space PAddr

const (
	// SpaceCurrent resolves to the root of the currently active address
	// space. It is never a valid page-aligned physical address on its
	// own (root tables are always page-aligned) so it cannot collide
	// with a real root.
	SpaceCurrent = Space(1)

	// SpaceInvalid marks the absence of an address space.
	SpaceInvalid = Space(InvalidPAddr)
)

func resolveSpace(s Space) Space {
	if s == SpaceCurrent {
		return Space(currentSpaceHWFn())
	}
	return s
}

// Map establishes a mapping between virt and phys in space, allocating any
// missing intermediate page tables via allocFn. The caller must invoke
// FlushTLB(virt) afterwards; Map does not flush the TLB itself so batched
// mapping sequences can amortize the flush cost.
func Map(space Space, virt VAddr, phys PAddr, flags Flags, allocFn FrameAllocatorFn) *kernel.Error {
	if !isCanonical(virt) {
		return errNonCanonical
	}
	if !aligned4K(uintptr(virt)) || !aligned4K(uintptr(phys)) {
		return errMisaligned
	}

	root := resolveSpace(space)
	result, err := walk(PAddr(root), virt, true, allocFn)
	if err != nil {
		return err
	}

	switch result.status {
	case statusHitBlock:
		return errBlockCollision
	case statusMalformed:
		return ErrInvalidMapping
	}

	entry, mkErr := makeLeafEntry(phys, flags|FlagPresent, false)
	if mkErr != nil {
		return mkErr
	}
	*result.entry = entry

	return nil
}

// MapHuge behaves like Map but installs a 2 MiB block/huge descriptor,
// stopping the walk one level above the base leaf.
func MapHuge(space Space, virt VAddr, phys PAddr, flags Flags, allocFn FrameAllocatorFn) *kernel.Error {
	if !isCanonical(virt) {
		return errNonCanonical
	}
	if !aligned2M(uintptr(virt)) || !aligned2M(uintptr(phys)) {
		return errMisaligned
	}

	root := resolveSpace(space)
	result, err := walkToLevel(PAddr(root), virt, hugeLevel, true, allocFn)
	if err != nil {
		return err
	}

	switch result.status {
	case statusHitBlock:
		return errBlockCollision
	case statusMalformed:
		return ErrInvalidMapping
	}

	entry, mkErr := makeLeafEntry(phys, flags|FlagPresent|FlagHuge, true)
	if mkErr != nil {
		return mkErr
	}
	*result.entry = entry

	return nil
}

// Unmap removes a mapping previously installed by Map. It returns the
// physical address that was mapped, or InvalidPAddr if virt does not
// resolve to a present leaf. The caller must invoke FlushTLB(virt).
func Unmap(space Space, virt VAddr) (PAddr, *kernel.Error) {
	root := resolveSpace(space)
	result, err := walk(PAddr(root), virt, false, nil)
	if err != nil {
		return InvalidPAddr, err
	}

	if result.status != statusHit {
		return InvalidPAddr, ErrInvalidMapping
	}

	phys, _ := decodeEntry(*result.entry)
	result.entry.clear()

	return phys, nil
}

// UnmapHuge removes a 2 MiB block mapping previously installed by MapHuge.
func UnmapHuge(space Space, virt VAddr) (PAddr, *kernel.Error) {
	root := resolveSpace(space)
	result, err := walkToLevel(PAddr(root), virt, hugeLevel, false, nil)
	if err != nil {
		return InvalidPAddr, err
	}

	if result.status != statusHitBlock {
		return InvalidPAddr, ErrInvalidMapping
	}

	result.entry.clear()
	return result.blockBase, nil
}

// Query reports the physical address and flags currently mapped at virt,
// following block/huge entries transparently. It returns false if virt is
// not present.
func Query(space Space, virt VAddr) (PAddr, Flags, bool) {
	root := resolveSpace(space)
	result, err := walk(PAddr(root), virt, false, nil)
	if err != nil {
		return InvalidPAddr, 0, false
	}

	switch result.status {
	case statusHit:
		phys, flags := decodeEntry(*result.entry)
		return phys, flags, true
	case statusHitBlock:
		_, flags := decodeEntry(*result.entry)
		blockSize := blockSizeForLevel(result.level)
		offset := uintptr(virt) & (blockSize - 1)
		return PAddr(uintptr(result.blockBase) + offset), flags | FlagHuge, true
	default:
		return InvalidPAddr, 0, false
	}
}

// Protect adjusts the flags of the mapping at virt by applying set/clear to
// its decoded flags, preserving the physical address. It returns false if
// virt does not resolve to a present leaf or block.
func Protect(space Space, virt VAddr, set, clear Flags) bool {
	root := resolveSpace(space)
	result, err := walk(PAddr(root), virt, false, nil)
	if err != nil || (result.status != statusHit && result.status != statusHitBlock) {
		return false
	}

	*result.entry = modifyFlags(*result.entry, set, clear)
	return true
}

// IsHuge reports whether virt resolves to a block/huge descriptor.
func IsHuge(space Space, virt VAddr) bool {
	root := resolveSpace(space)
	result, err := walk(PAddr(root), virt, false, nil)
	return err == nil && result.status == statusHitBlock
}

// FlushTLB invalidates the TLB entry for virt.
func FlushTLB(virt VAddr) {
	flushTLBEntryFn(uintptr(virt))
}

// FlushTLBAll invalidates every TLB entry for the current address space.
func FlushTLBAll() {
	flushTLBAllFn()
}

// SwitchSpace installs space as the active address space root.
func SwitchSpace(space Space) {
	switchSpaceHWFn(uintptr(space))
}

// CurrentSpace returns the currently active address space.
func CurrentSpace() Space {
	return Space(currentSpaceHWFn())
}

// walkToLevel behaves like walk but stops early once it reaches stopLevel,
// even if that entry is absent, so huge-page operations can inspect/install
// a block descriptor without continuing down to the base leaf.
func walkToLevel(root PAddr, virt VAddr, stopLevel uint8, allocate bool, allocFn FrameAllocatorFn) (walkResult, *kernel.Error) {
	tableAddr := root

	for l := int8(pageLevels - 1); l >= int8(stopLevel); l-- {
		level := uint8(l)
		entry := entryAt(tableAddr, virt, level)

		if level == stopLevel {
			if !entry.present() {
				return walkResult{status: statusAbsent, level: level, entry: entry}, nil
			}
			if entry.isBlock() {
				return walkResult{status: statusHitBlock, level: level, entry: entry, blockBase: blockBaseFor(*entry)}, nil
			}
			return walkResult{status: statusMalformed, level: level, entry: entry}, nil
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

	return walkResult{status: statusMalformed}, nil
}
