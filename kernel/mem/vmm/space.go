package vmm

import (
	"nyxos/kernel"
	"nyxos/kernel/kfmt/early"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
)

// kernelHalfStart is the first root-table index that belongs to the shared
// kernel half (256 of 512 entries on both architectures).
const kernelHalfStart = entriesPerLevel / 2

var errDestroyCurrent = &kernel.Error{Module: "vmm", Message: "refusing to destroy the active address space"}

// CreateSpace allocates a fresh address space: a zeroed root table whose
// kernel half (indices 256-511) is a direct copy of the currently active
// root, so kernel mappings are immediately visible without a separate step.
func CreateSpace() (Space, *kernel.Error) {
	frame, err := frames.Alloc()
	if err != nil {
		return SpaceInvalid, err
	}

	root := PAddr(frame.Address())
	mem.Memset(physToKVirtFn(uintptr(root)), 0, mem.PageSize)
	copyKernelHalf(PAddr(currentSpaceHWFn()), root)

	return Space(root), nil
}

// mutation records a page-table entry changed during a clone so it can be
// restored verbatim if the clone later fails.
type mutation struct {
	entry    *tableEntry
	original tableEntry
}

type cloneState struct {
	allocatedTables []pmm.Frame
	refIncremented  []pmm.Frame
	mutated         []mutation
	err             *kernel.Error
}

func (s *cloneState) unwind() {
	for _, m := range s.mutated {
		*m.entry = m.original
	}
	for _, f := range s.refIncremented {
		frames.RefDec(f)
	}
	for _, f := range s.allocatedTables {
		frames.Free(f)
	}
}

// CloneSpace forks src into a new address space using copy-on-write: every
// writable user-half leaf or block in src is converted (in both src and the
// clone) to read-only plus COW, and the backing frame's reference count is
// incremented. On any allocator failure the clone unwinds completely,
// restoring src to its pre-clone state, and returns SpaceInvalid.
func CloneSpace(src Space) (Space, *kernel.Error) {
	srcRoot := PAddr(resolveSpace(src))

	rootFrame, err := frames.Alloc()
	if err != nil {
		return SpaceInvalid, err
	}
	dstRoot := PAddr(rootFrame.Address())
	mem.Memset(physToKVirtFn(uintptr(dstRoot)), 0, mem.PageSize)

	copyKernelHalf(srcRoot, dstRoot)

	state := &cloneState{}
	cloneRange(pageLevels-1, srcRoot, dstRoot, 0, kernelHalfStart-1, state)
	if state.err != nil {
		state.unwind()
		frames.Free(rootFrame)
		return SpaceInvalid, state.err
	}

	// Source entries moved from RW to RO+COW; its TLB must observe that
	// before returning to the caller.
	flushTLBAllFn()

	return Space(dstRoot), nil
}

// cloneRange clones table indices [startIdx, endIdx] of srcTable into
// dstTable at the given walk level (pageLevels-1 == root).
func cloneRange(level uint8, srcTable, dstTable PAddr, startIdx, endIdx uintptr, state *cloneState) {
	for idx := startIdx; idx <= endIdx && state.err == nil; idx++ {
		srcEntry := entryAtIndex(srcTable, idx)
		dstEntry := entryAtIndex(dstTable, idx)

		if !srcEntry.present() {
			dstEntry.clear()
			continue
		}

		if level == 0 || srcEntry.isBlock() {
			cloneLeafOrBlock(srcEntry, dstEntry, state)
			continue
		}

		childFrame, err := frames.Alloc()
		if err != nil {
			state.err = err
			return
		}
		state.allocatedTables = append(state.allocatedTables, childFrame)
		mem.Memset(physToKVirtFn(childFrame.Address()), 0, mem.PageSize)
		dstEntry.setTableDescriptor(PAddr(childFrame.Address()))

		cloneRange(level-1, srcEntry.tableFrame(), PAddr(childFrame.Address()), 0, entriesPerLevel-1, state)
	}
}

// cloneLeafOrBlock implements the COW step: a writable leaf/block is
// demoted to read-only+COW in both src and dst before the frame's
// reference count is bumped, so the next write in either space traps.
func cloneLeafOrBlock(srcEntry, dstEntry *tableEntry, state *cloneState) {
	original := *srcEntry
	phys, flags := decodeEntry(original)

	e := original
	if flags.Has(FlagWrite) {
		e = modifyFlags(original, FlagCOW, FlagWrite)
		*srcEntry = e
		state.mutated = append(state.mutated, mutation{entry: srcEntry, original: original})
	}
	*dstEntry = e

	frame := pmm.Frame(uintptr(phys) >> mem.PageShift)
	frames.RefInc(frame)
	state.refIncremented = append(state.refIncremented, frame)
}

// DestroySpace frees every user-half page-table page and decrements the
// reference count of every frame it mapped, then frees the root itself. It
// never touches the shared kernel half and never fails: attempting to
// destroy the active address space is a no-op (the caller must switch away
// first), logged as a diagnostic rather than silently ignored.
func DestroySpace(space Space) {
	root := PAddr(space)
	if Space(root) == CurrentSpace() {
		early.Printf("[%s] %s: root=0x%x\n", errDestroyCurrent.Module, errDestroyCurrent.Message, uintptr(root))
		return
	}

	destroyRange(pageLevels-1, root, 0, kernelHalfStart-1)
	frames.Free(pmm.Frame(uintptr(root) >> mem.PageShift))
}

func destroyRange(level uint8, table PAddr, startIdx, endIdx uintptr) {
	for idx := startIdx; idx <= endIdx; idx++ {
		entry := entryAtIndex(table, idx)
		if !entry.present() {
			continue
		}

		if level == 0 || entry.isBlock() {
			phys, _ := decodeEntry(*entry)
			frames.RefDec(pmm.Frame(uintptr(phys) >> mem.PageShift))
			continue
		}

		child := entry.tableFrame()
		destroyRange(level-1, child, 0, entriesPerLevel-1)
		frames.Free(pmm.Frame(uintptr(child) >> mem.PageShift))
	}
}

func copyKernelHalf(srcRoot, dstRoot PAddr) {
	for idx := uintptr(kernelHalfStart); idx < entriesPerLevel; idx++ {
		*entryAtIndex(dstRoot, idx) = *entryAtIndex(srcRoot, idx)
	}
}
