// Command vmbench drives the vmm package's address-space lifecycle and
// mapping operations on the host, outside any kernel boot environment, and
// emits a pprof profile describing where the time went. It exists because
// the core is otherwise only exercisable inside a freestanding kernel image
// running under an emulator — this gives a faster, scriptable signal on
// whether a change to the walker, entry codec, or clone path regressed
// performance, without needing to boot anything.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"nyxos/kernel"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
	"nyxos/kernel/mem/vmm"

	"github.com/google/pprof/profile"
)

func main() {
	spaces := flag.Int("spaces", 8, "number of address spaces to create and clone")
	pagesPerSpace := flag.Int("pages", 256, "number of 4 KiB pages mapped into each address space before cloning")
	out := flag.String("out", "vmbench.pb.gz", "pprof profile output path")
	flag.Parse()

	if err := run(*spaces, *pagesPerSpace, *out); err != nil {
		fmt.Fprintln(os.Stderr, "vmbench:", err)
		os.Exit(1)
	}
}

// sample accumulates the wall-clock cost of one named operation across every
// iteration of the benchmark loop.
type sample struct {
	calls int64
	nanos int64
}

func run(spaceCount, pagesPerSpace int, outPath string) error {
	arena := newHostArena(spaceCount*(pagesPerSpace*2+64) + 256)
	vmm.SetFrameAllocator(arena.ops())
	vmm.SetPhysToKVirt(func(phys uintptr) uintptr { return phys })

	var active uintptr
	vmm.SetHardwareHooks(vmm.HardwareHooks{
		CurrentSpace: func() uintptr { return active },
		SwitchSpace:  func(root uintptr) { active = root },
		FlushEntry:   func(uintptr) {},
		FlushAll:     func() {},
	})

	kernelRoot, err := arena.allocFrame()
	if err != nil {
		return fmt.Errorf("seed kernel root: %w", err)
	}
	active = kernelRoot.Address()

	samples := map[string]*sample{
		"create_space": {},
		"map_page":     {},
		"clone_space":  {},
		"destroy_clone": {},
		"destroy_space": {},
	}
	record := func(name string, d time.Duration) {
		s := samples[name]
		s.calls++
		s.nanos += d.Nanoseconds()
	}

	for i := 0; i < spaceCount; i++ {
		vmm.SwitchSpace(vmm.Space(kernelRoot.Address()))

		start := time.Now()
		space, err := vmm.CreateSpace()
		record("create_space", time.Since(start))
		if err != nil {
			return fmt.Errorf("create_space[%d]: %w", i, err)
		}

		for p := 0; p < pagesPerSpace; p++ {
			frame, err := arena.allocFrame()
			if err != nil {
				return fmt.Errorf("alloc leaf frame: %w", err)
			}
			virt := vmm.VAddr(uintptr(p+1) * uintptr(mem.PageSize))

			start = time.Now()
			err = vmm.Map(space, virt, vmm.PAddr(frame.Address()), vmm.FlagWrite|vmm.FlagUser, arena.allocFrame)
			record("map_page", time.Since(start))
			if err != nil {
				return fmt.Errorf("map[%d/%d]: %w", i, p, err)
			}
			vmm.FlushTLB(virt)
		}

		start = time.Now()
		clone, err := vmm.CloneSpace(space)
		record("clone_space", time.Since(start))
		if err != nil {
			return fmt.Errorf("clone_space[%d]: %w", i, err)
		}

		vmm.SwitchSpace(vmm.Space(kernelRoot.Address()))

		start = time.Now()
		vmm.DestroySpace(clone)
		record("destroy_clone", time.Since(start))

		start = time.Now()
		vmm.DestroySpace(space)
		record("destroy_space", time.Since(start))
	}

	return writeProfile(samples, outPath)
}

func writeProfile(samples map[string]*sample, outPath string) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "operations", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     1,
	}

	fn := &profile.Function{ID: 1, Name: "vmbench.run"}
	p.Function = []*profile.Function{fn}

	nextID := uint64(1)
	for name, s := range samples {
		loc := &profile.Location{
			ID:   nextID,
			Line: []profile.Line{{Function: fn, Line: 0}},
		}
		p.Location = append(p.Location, loc)

		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.calls, s.nanos},
			Label:    map[string][]string{"operation": {name}},
		})
		nextID++
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create profile output: %w", err)
	}
	defer f.Close()

	if err := p.Write(f); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	for name, s := range samples {
		avg := int64(0)
		if s.calls > 0 {
			avg = s.nanos / s.calls
		}
		fmt.Printf("%-14s calls=%-6d avg_ns=%d\n", name, s.calls, avg)
	}
	return nil
}

// hostArena backs every frame handed out during the benchmark with real
// process memory and tracks per-frame reference counts exactly the way the
// real pmm.Allocator does, so CloneSpace/DestroySpace see the same contract
// they would against the bitmap allocator.
type hostArena struct {
	buf      []byte
	next     pmm.Frame
	max      pmm.Frame
	refcount map[pmm.Frame]uint32
}

func newHostArena(pages int) *hostArena {
	buf := make([]byte, (pages+1)*int(mem.PageSize))
	raw := uintptrOf(buf)
	aligned := (raw + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	base := pmm.Frame(aligned >> mem.PageShift)
	return &hostArena{
		buf:      buf,
		next:     base,
		max:      base + pmm.Frame(pages),
		refcount: make(map[pmm.Frame]uint32),
	}
}

var errArenaExhausted = &kernel.Error{Module: "vmbench", Message: "host arena out of frames"}

func (a *hostArena) allocFrame() (pmm.Frame, *kernel.Error) {
	if a.next >= a.max {
		return pmm.InvalidFrame, errArenaExhausted
	}
	f := a.next
	a.next++
	a.refcount[f] = 1
	mem.Memset(f.Address(), 0, mem.PageSize)
	return f, nil
}

func (a *hostArena) freeFrame(f pmm.Frame) *kernel.Error {
	if a.refcount[f] > 0 {
		a.refcount[f]--
	}
	return nil
}

func (a *hostArena) refInc(f pmm.Frame) uint32 {
	a.refcount[f]++
	return a.refcount[f]
}

func (a *hostArena) refCount(f pmm.Frame) uint32 {
	return a.refcount[f]
}

func (a *hostArena) ops() vmm.FrameOps {
	return vmm.FrameOps{
		Alloc:    a.allocFrame,
		Free:     a.freeFrame,
		RefInc:   a.refInc,
		RefDec:   a.freeFrame,
		RefCount: a.refCount,
	}
}
