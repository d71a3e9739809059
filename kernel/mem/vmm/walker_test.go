package vmm

import "testing"

func TestWalkAbsentWithoutAllocate(t *testing.T) {
	arena, restore := newTestArena(t, 8)
	defer restore()

	rootFrame, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc root: %v", err)
	}

	result, werr := walk(PAddr(rootFrame.Address()), VAddr(0x1000), false, nil)
	if werr != nil {
		t.Fatalf("walk: %v", werr)
	}
	if result.status != statusAbsent {
		t.Fatalf("expected statusAbsent; got %v", result.status)
	}
}

func TestWalkAllocatesIntermediateTables(t *testing.T) {
	arena, restore := newTestArena(t, 16)
	defer restore()

	rootFrame, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc root: %v", err)
	}

	virt := VAddr(0x0000_0000_0020_1000)
	result, werr := walk(PAddr(rootFrame.Address()), virt, true, arena.alloc)
	if werr != nil {
		t.Fatalf("walk: %v", werr)
	}
	if result.status != statusAbsent {
		t.Fatalf("expected the leaf slot itself to come back absent; got %v", result.status)
	}
	if result.level != 0 {
		t.Fatalf("expected walk to reach level 0; got %d", result.level)
	}

	leafEntry, mkErr := makeEntry(0x9000, FlagPresent|FlagWrite)
	if mkErr != nil {
		t.Fatalf("makeEntry: %v", mkErr)
	}
	*result.entry = leafEntry

	again, werr := walk(PAddr(rootFrame.Address()), virt, false, nil)
	if werr != nil {
		t.Fatalf("walk: %v", werr)
	}
	if again.status != statusHit {
		t.Fatalf("expected statusHit after installing leaf; got %v", again.status)
	}
	phys, flags := decodeEntry(*again.entry)
	if phys != 0x9000 || !flags.Has(FlagWrite) {
		t.Fatalf("unexpected decoded leaf: phys=%#x flags=%#x", phys, flags)
	}
}

func TestWalkOutOfFramesPropagatesError(t *testing.T) {
	arena, restore := newTestArena(t, 1)
	defer restore()

	rootFrame, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc root: %v", err)
	}

	_, werr := walk(PAddr(rootFrame.Address()), VAddr(0x1000), true, arena.alloc)
	if werr == nil {
		t.Fatal("expected walk to propagate an out-of-frames error")
	}
}

func TestWalkHitsBlockEntry(t *testing.T) {
	arena, restore := newTestArena(t, 8)
	defer restore()

	rootFrame, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc root: %v", err)
	}

	virt := VAddr(uintptr(hugePageSize) * 3)
	result, werr := walkToLevel(PAddr(rootFrame.Address()), virt, hugeLevel, true, arena.alloc)
	if werr != nil {
		t.Fatalf("walkToLevel: %v", werr)
	}
	blockEntry, mkErr := makeLeafEntry(PAddr(uintptr(hugePageSize)*7), FlagPresent|FlagWrite, true)
	if mkErr != nil {
		t.Fatalf("makeLeafEntry: %v", mkErr)
	}
	*result.entry = blockEntry

	again, werr := walkToLevel(PAddr(rootFrame.Address()), virt, hugeLevel, false, nil)
	if werr != nil {
		t.Fatalf("walkToLevel: %v", werr)
	}
	if again.status != statusHitBlock {
		t.Fatalf("expected statusHitBlock; got %v", again.status)
	}
	if again.blockBase != PAddr(uintptr(hugePageSize)*7) {
		t.Fatalf("expected block base %#x; got %#x", uintptr(hugePageSize)*7, again.blockBase)
	}
}
