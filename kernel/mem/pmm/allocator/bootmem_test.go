package allocator

import (
	"testing"

	"nyxos/kernel/kfmt/early"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
)

// bufSink is a test-only early.Sink that records everything written to it,
// used here to assert that the boot allocator reports its memory map without
// needing a real console.
type bufSink struct {
	buf []byte
}

func (s *bufSink) WriteByte(c byte) { s.buf = append(s.buf, c) }
func (s *bufSink) Write(p []byte)   { s.buf = append(s.buf, p...) }

// testRegions mirrors the available ranges from a qemu run with 128M of RAM:
// region 1 rounds to [0, 9fc00) and provides 159 frames, region 2 uses its
// original extents [100000, 7fe0000) and provides 32480 frames.
var testRegions = []pmm.Region{
	{Start: 0, Length: mem.Size(0x9fc00)},
	{Start: 0x100000, Length: mem.Size(0x7fe0000 - 0x100000)},
}

func TestBootMemoryAllocator(t *testing.T) {
	var totalFreeFrames uint64 = 159 + 32480

	var (
		alloc           BootMemAllocator
		allocFrameCount uint64
	)
	alloc.Init(testRegions, 0, 0)

	for {
		frame, err := alloc.AllocFrame(mem.PageOrder(0))
		if err != nil {
			if err == errBootAllocOutOfMemory {
				break
			}
			t.Fatalf("[frame %d] unexpected allocator error: %v", allocFrameCount, err)
		}
		allocFrameCount++
		if frame != pmm.Frame(alloc.lastAllocIndex) {
			t.Errorf("[frame %d] expected allocated frame to be %d; got %d", allocFrameCount, alloc.lastAllocIndex, frame)
		}

		if !frame.IsValid() {
			t.Errorf("[frame %d] expected IsValid() to return true", allocFrameCount)
		}
	}

	if allocFrameCount != totalFreeFrames {
		t.Fatalf("expected allocator to allocate %d frames; allocated %d", totalFreeFrames, allocFrameCount)
	}

	if _, err := alloc.AllocFrame(mem.PageOrder(1)); err != errBootAllocUnsupportedPageSize {
		t.Fatalf("expected an order > 0 request to fail with errBootAllocUnsupportedPageSize; got %v", err)
	}
}

func TestBootMemAllocatorPrintsMemoryMap(t *testing.T) {
	sink := &bufSink{}
	early.SetOutput(sink)

	var alloc BootMemAllocator
	alloc.Init(testRegions, 0, 0)

	if len(sink.buf) == 0 {
		t.Fatal("expected Init to print the system memory map")
	}
}
