package vmm

import (
	"testing"
	"unsafe"
)

func TestHandleFaultRestoresWriteWhenSoleOwner(t *testing.T) {
	arena, restore := newTestArena(t, 16)
	defer restore()
	installFrameOps(t, arena.ops())

	kernelRoot, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc kernel root: %v", err)
	}
	asKernelRoot(kernelRoot.Address())

	space, err := CreateSpace()
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	leaf, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc leaf: %v", err)
	}
	virt := VAddr(0x0000_0000_0030_0000)
	if mapErr := Map(space, virt, PAddr(leaf.Address()), FlagPresent|FlagUser|FlagCOW, arena.alloc); mapErr != nil {
		t.Fatalf("Map: %v", mapErr)
	}
	// Simulate an entry left over from a clone whose sibling has since
	// been destroyed: COW is set, WRITE is clear, but this address space
	// is once again the frame's sole owner.
	if !Protect(space, virt, 0, FlagWrite) {
		t.Fatal("expected Protect to succeed setting up the sole-owner COW entry")
	}

	testFaultAddr = uintptr(virt)
	defer func() { testFaultAddr = 0 }()

	if ok := HandleFault(space, cowFaultRaw(), 0); !ok {
		t.Fatal("expected HandleFault to resolve a sole-owner COW fault")
	}

	phys, flags, ok := Query(space, virt)
	if !ok {
		t.Fatal("expected the mapping to still be present after resolving the fault")
	}
	if phys != PAddr(leaf.Address()) {
		t.Fatalf("expected the original frame to be reused for a sole owner; got %#x want %#x", phys, leaf.Address())
	}
	if !flags.Has(FlagWrite) || flags.Has(FlagCOW) {
		t.Fatalf("expected WRITE restored and COW cleared; got %#x", flags)
	}
}

func TestHandleFaultCopiesOnSharedFrame(t *testing.T) {
	arena, restore := newTestArena(t, 32)
	defer restore()
	installFrameOps(t, arena.ops())

	kernelRoot, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc kernel root: %v", err)
	}
	asKernelRoot(kernelRoot.Address())

	src, err := CreateSpace()
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	leaf, err := arena.alloc()
	if err != nil {
		t.Fatalf("alloc leaf: %v", err)
	}
	*(*byte)(unsafe.Pointer(leaf.Address())) = 0x42

	virt := VAddr(0x0000_0000_0040_0000)
	if mapErr := Map(src, virt, PAddr(leaf.Address()), FlagPresent|FlagWrite|FlagUser, arena.alloc); mapErr != nil {
		t.Fatalf("Map: %v", mapErr)
	}

	clone, cloneErr := CloneSpace(src)
	if cloneErr != nil {
		t.Fatalf("CloneSpace: %v", cloneErr)
	}

	if got := arena.refCount(leaf); got != 2 {
		t.Fatalf("expected shared refcount 2 before the fault; got %d", got)
	}

	testFaultAddr = uintptr(virt)
	defer func() { testFaultAddr = 0 }()

	if ok := HandleFault(clone, cowFaultRaw(), 0); !ok {
		t.Fatal("expected HandleFault to resolve a shared-frame COW fault")
	}

	phys, flags, ok := Query(clone, virt)
	if !ok {
		t.Fatal("expected the clone's mapping to still be present after the fault")
	}
	if phys == PAddr(leaf.Address()) {
		t.Fatal("expected HandleFault to install a private copy, not reuse the shared frame")
	}
	if !flags.Has(FlagWrite) || flags.Has(FlagCOW) {
		t.Fatalf("expected the clone's copy to be writable and COW-clear; got %#x", flags)
	}
	if got := *(*byte)(unsafe.Pointer(uintptr(phys))); got != 0x42 {
		t.Fatalf("expected the private copy to preserve the original byte; got %#x", got)
	}

	if got := arena.refCount(leaf); got != 1 {
		t.Fatalf("expected the shared frame's refcount to drop back to 1; got %d", got)
	}

	srcPhys, srcFlags, ok := Query(src, virt)
	if !ok {
		t.Fatal("expected src's own mapping to be unaffected by the clone's fault")
	}
	if srcPhys != PAddr(leaf.Address()) {
		t.Fatalf("expected src to still point at the shared frame; got %#x", srcPhys)
	}
	if srcFlags.Has(FlagWrite) || !srcFlags.Has(FlagCOW) {
		t.Fatalf("expected src to remain COW-protected; got %#x", srcFlags)
	}
}
