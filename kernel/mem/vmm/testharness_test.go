package vmm

import (
	"testing"
	"unsafe"

	"nyxos/kernel"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
)

// testActiveRoot backs currentSpaceHWFn/switchSpaceHWFn for the duration of
// the test binary. Real cpu.ActivePDT/cpu.SwitchPDT read and write CR3 (or
// TTBR0_EL1), privileged state a hosted test process cannot touch, so every
// test that exercises space switching goes through this fake instead.
var testActiveRoot uintptr

// testFaultAddr backs readFaultAddrFn for the duration of the test binary.
// Real cpu.ReadFaultAddr reads CR2 (or FAR_EL1), a privileged read a hosted
// test process cannot perform — it would fault immediately.
var testFaultAddr uintptr

func init() {
	currentSpaceHWFn = func() uintptr { return testActiveRoot }
	switchSpaceHWFn = func(root uintptr) { testActiveRoot = root }
	flushTLBEntryFn = func(uintptr) {}
	flushTLBAllFn = func() {}
	readFaultAddrFn = func() uintptr { return testFaultAddr }
}

// testArena backs every frame handed out during a test with real host
// memory and numbers frames so that Frame.Address() already points at
// addressable storage. This lets tests install an identity physToKVirtFn
// instead of needing a real direct-mapped physical range.
type testArena struct {
	buf       []byte
	nextFrame pmm.Frame
	maxFrame  pmm.Frame
	refs      map[pmm.Frame]uint32
}

// newTestArena reserves room for pages frames and wires up physToKVirtFn so
// the rest of the package can dereference them as if through the direct
// map. Callers should defer the returned restore function.
func newTestArena(t *testing.T, pages int) (*testArena, func()) {
	t.Helper()

	buf := make([]byte, (pages+1)*int(mem.PageSize))
	raw := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (raw + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	base := pmm.Frame(aligned >> mem.PageShift)

	a := &testArena{
		buf:       buf,
		nextFrame: base,
		maxFrame:  base + pmm.Frame(pages),
		refs:      make(map[pmm.Frame]uint32),
	}

	prev := physToKVirtFn
	physToKVirtFn = func(phys uintptr) uintptr { return phys }
	return a, func() { physToKVirtFn = prev }
}

func (a *testArena) alloc() (pmm.Frame, *kernel.Error) {
	if a.nextFrame >= a.maxFrame {
		return pmm.InvalidFrame, errOutOfFrames
	}
	f := a.nextFrame
	a.nextFrame++
	a.refs[f] = 1
	mem.Memset(f.Address(), 0, mem.PageSize)
	return f, nil
}

func (a *testArena) free(f pmm.Frame) *kernel.Error {
	if a.refs[f] > 0 {
		a.refs[f]--
	}
	return nil
}

func (a *testArena) refInc(f pmm.Frame) uint32 {
	a.refs[f]++
	return a.refs[f]
}

func (a *testArena) refCount(f pmm.Frame) uint32 {
	return a.refs[f]
}

func (a *testArena) ops() FrameOps {
	return FrameOps{
		Alloc:    a.alloc,
		Free:     a.free,
		RefInc:   a.refInc,
		RefDec:   a.free,
		RefCount: a.refCount,
	}
}

// installFrameOps registers ops on the package-level frames var for the
// duration of a test and restores the previous value afterwards.
func installFrameOps(t *testing.T, ops FrameOps) {
	t.Helper()
	prev := frames
	frames = ops
	t.Cleanup(func() { frames = prev })
}
