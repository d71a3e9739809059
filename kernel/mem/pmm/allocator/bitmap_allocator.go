package allocator

import (
	"reflect"
	"unsafe"

	"nyxos/kernel"
	"nyxos/kernel/kfmt/early"
	"nyxos/kernel/mem"
	"nyxos/kernel/mem/pmm"
)

var (
	// FrameAllocator is a BitmapAllocator instance that serves as the
	// primary allocator for reserving pages.
	FrameAllocator BitmapAllocator

	// frameKVAddrFn resolves a frame to the kernel-writable virtual
	// address the allocator should zero-initialize it through. It is
	// mocked by tests, which have no direct-mapped physical memory to
	// write through and substitute a host-backed buffer instead.
	frameKVAddrFn = pmm.Frame.KernelAddress

	errOutOfMemory = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBadFrame    = &kernel.Error{Module: "bitmap_alloc", Message: "frame does not belong to any known pool"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree            = true
)

type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame pmm.Frame

	// endFrame tracks the last frame in the pool. The total number of
	// frames is given by: (endFrame - startFrame) + 1
	endFrame pmm.Frame

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool.
	freeBitmap    []uint64
	freeBitmapHdr reflect.SliceHeader

	// refCount tracks, per frame, how many address spaces currently map
	// it. A frame shared by more than one space must be treated as
	// copy-on-write; FreeFrame decrements the count and only actually
	// returns the frame to the free bitmap once it reaches zero.
	refCount    []uint32
	refCountHdr reflect.SliceHeader
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps, plus a
// parallel per-frame reference count used to support copy-on-write sharing.
type BitmapAllocator struct {
	// totalPages tracks the total number of pages across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved pages across all pools.
	reservedPages uint32

	pools    []framePool
	poolsHdr reflect.SliceHeader
}

// init allocates space for the allocator structures using the early bootmem
// allocator and flags any allocated pages as reserved.
func (alloc *BitmapAllocator) init(regions []pmm.Region) *kernel.Error {
	if err := alloc.setupPoolBitmaps(regions); err != nil {
		return err
	}

	alloc.reserveKernelFrames()
	alloc.reserveEarlyAllocatorFrames()
	alloc.printStats()
	return nil
}

// setupPoolBitmaps uses the early allocator to reserve storage for the pool
// list and the free/refcount bitmaps, dereferencing that storage through the
// direct physical memory map rather than establishing a temporary virtual
// mapping for it.
func (alloc *BitmapAllocator) setupPoolBitmaps(regions []pmm.Region) *kernel.Error {
	var (
		sizeofPool          = unsafe.Sizeof(framePool{})
		pageSizeMinus1      = uint64(mem.PageSize - 1)
		requiredBitmapBytes mem.Size
	)

	if len(regions) == 0 {
		return nil
	}

	for range regions {
		alloc.poolsHdr.Len++
		alloc.poolsHdr.Cap++
	}

	for _, region := range regions {
		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		regionStartFrame := pmm.Frame(((uint64(region.Start) + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((uint64(region.Start)+uint64(region.Length)) &^ pageSizeMinus1)>>mem.PageShift) - 1
		pageCount := uint32(regionEndFrame - regionStartFrame)
		alloc.totalPages += pageCount

		// To represent the free page bitmap we need pageCount bits. Since our
		// slice uses uint64 for storing the bitmap we need to round up the
		// required bits so they are a multiple of 64 bits
		requiredBitmapBytes += mem.Size(((pageCount + 63) &^ 63) >> 3)
	}

	// The refcount array needs one uint32 per tracked frame.
	requiredRefCountBytes := mem.Size(alloc.totalPages) * 4

	requiredBytes := mem.Size(((uint64(uintptr(alloc.poolsHdr.Len)*sizeofPool) + uint64(requiredBitmapBytes) + uint64(requiredRefCountBytes)) + pageSizeMinus1) &^ pageSizeMinus1)
	requiredPages := requiredBytes >> mem.PageShift

	firstFrame, err := earlyAllocFrame()
	if err != nil {
		return err
	}
	alloc.poolsHdr.Data = frameKVAddrFn(firstFrame)
	mem.Memset(alloc.poolsHdr.Data, 0, mem.PageSize)

	for index := mem.Size(1); index < requiredPages; index++ {
		nextFrame, err := earlyAllocFrame()
		if err != nil {
			return err
		}

		mem.Memset(frameKVAddrFn(nextFrame), 0, mem.PageSize)
	}

	alloc.pools = *(*[]framePool)(unsafe.Pointer(&alloc.poolsHdr))

	// Run a second pass to initialize the free bitmap and refcount slices
	// for all pools.
	bitmapStartAddr := alloc.poolsHdr.Data + uintptr(alloc.poolsHdr.Len)*sizeofPool
	refCountStartAddr := bitmapStartAddr + uintptr(requiredBitmapBytes)
	refCountOffset := uintptr(0)
	poolIndex := 0
	for _, region := range regions {
		regionStartFrame := pmm.Frame(((uint64(region.Start) + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((uint64(region.Start)+uint64(region.Length)) &^ pageSizeMinus1)>>mem.PageShift) - 1
		bitmapBytes := uintptr((((regionEndFrame - regionStartFrame) + 63) &^ 63) >> 3)
		pageCount := uintptr(regionEndFrame-regionStartFrame) + 1

		pool := &alloc.pools[poolIndex]
		pool.startFrame = regionStartFrame
		pool.endFrame = regionEndFrame
		pool.freeCount = uint32(pageCount)

		pool.freeBitmapHdr.Len = int(bitmapBytes >> 3)
		pool.freeBitmapHdr.Cap = pool.freeBitmapHdr.Len
		pool.freeBitmapHdr.Data = bitmapStartAddr
		pool.freeBitmap = *(*[]uint64)(unsafe.Pointer(&pool.freeBitmapHdr))

		pool.refCountHdr.Len = int(pageCount)
		pool.refCountHdr.Cap = pool.refCountHdr.Len
		pool.refCountHdr.Data = refCountStartAddr + refCountOffset
		pool.refCount = *(*[]uint32)(unsafe.Pointer(&pool.refCountHdr))

		bitmapStartAddr += bitmapBytes
		refCountOffset += pageCount * 4
		poolIndex++
	}

	return nil
}

// markFrame updates the reservation flag for the bitmap entry that corresponds
// to the supplied frame.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame pmm.Frame, flag markAs) {
	if poolIndex < 0 || frame > alloc.pools[poolIndex].endFrame {
		return
	}

	// The offset in the block is given by: frame % 64. As the bitmap uses a
	// big-endian representation we need to set the bit at index: 63 - offset
	relFrame := frame - alloc.pools[poolIndex].startFrame
	block := relFrame >> 6
	mask := uint64(1 << (63 - (relFrame - block<<6)))
	switch flag {
	case markFree:
		alloc.pools[poolIndex].freeBitmap[block] &^= mask
		alloc.pools[poolIndex].freeCount++
		alloc.reservedPages--
	case markReserved:
		alloc.pools[poolIndex].freeBitmap[block] |= mask
		alloc.pools[poolIndex].freeCount--
		alloc.reservedPages++
	}
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame is not contained in any of the available memory pools (e.g it
// points to a reserved memory region).
func (alloc *BitmapAllocator) poolForFrame(frame pmm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame <= pool.endFrame {
			return poolIndex
		}
	}

	return -1
}

// AllocFrame scans the free bitmap of each pool for the first unset bit,
// reserves it and returns the corresponding frame with a reference count of
// one.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	for poolIndex := range alloc.pools {
		pool := &alloc.pools[poolIndex]
		if pool.freeCount == 0 {
			continue
		}

		for block := 0; block < len(pool.freeBitmap); block++ {
			if pool.freeBitmap[block] == ^uint64(0) {
				continue
			}

			for bit := 0; bit < 64; bit++ {
				mask := uint64(1 << (63 - bit))
				if pool.freeBitmap[block]&mask != 0 {
					continue
				}

				frame := pool.startFrame + pmm.Frame(block<<6+bit)
				alloc.markFrame(poolIndex, frame, markReserved)
				pool.refCount[frame-pool.startFrame] = 1
				return frame, nil
			}
		}
	}

	return pmm.InvalidFrame, errOutOfMemory
}

// FreeFrame decrements the reference count of the supplied frame. The frame
// is only returned to the free bitmap once its reference count reaches
// zero; callers sharing a frame via copy-on-write call RefInc when
// establishing a new mapping and rely on FreeFrame to release their share.
func (alloc *BitmapAllocator) FreeFrame(frame pmm.Frame) *kernel.Error {
	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return errBadFrame
	}

	pool := &alloc.pools[poolIndex]
	relFrame := frame - pool.startFrame
	if pool.refCount[relFrame] > 0 {
		pool.refCount[relFrame]--
	}

	if pool.refCount[relFrame] == 0 {
		alloc.markFrame(poolIndex, frame, markFree)
	}

	return nil
}

// RefDec decrements the reference count for the supplied frame, releasing
// it back to the free bitmap once the count reaches zero. It is the named
// counterpart to RefInc and behaves exactly like FreeFrame, including
// returning errBadFrame for a frame outside every pool.
func (alloc *BitmapAllocator) RefDec(frame pmm.Frame) *kernel.Error {
	return alloc.FreeFrame(frame)
}

// RefCount returns the current reference count for the supplied frame.
func (alloc *BitmapAllocator) RefCount(frame pmm.Frame) uint32 {
	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return 0
	}

	pool := &alloc.pools[poolIndex]
	return pool.refCount[frame-pool.startFrame]
}

// RefInc increments the reference count for the supplied frame and returns
// the new count. Used when a COW fork adds another mapping that shares the
// frame instead of copying it.
func (alloc *BitmapAllocator) RefInc(frame pmm.Frame) uint32 {
	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return 0
	}

	pool := &alloc.pools[poolIndex]
	pool.refCount[frame-pool.startFrame]++
	return pool.refCount[frame-pool.startFrame]
}

// reserveKernelFrames makes as reserved the bitmap entries for the frames
// occupied by the kernel image.
func (alloc *BitmapAllocator) reserveKernelFrames() {
	// Flag frames used by kernel image as reserved. Since the kernel must
	// occupy a contiguous memory block we assume that all its frames will
	// fall into one of the available memory pools
	kernelStart, kernelEnd := EarlyAllocator.KernelFrameRange()
	if kernelStart == 0 && kernelEnd == 0 {
		return
	}

	poolIndex := alloc.poolForFrame(kernelStart)
	for frame := kernelStart; frame <= kernelEnd; frame++ {
		alloc.markFrame(poolIndex, frame, markReserved)
	}
}

// reserveEarlyAllocatorFrames makes as reserved the bitmap entries for the frames
// already allocated by the early allocator.
func (alloc *BitmapAllocator) reserveEarlyAllocatorFrames() {
	// We now need to decommission the early allocator by flagging all frames
	// allocated by it as reserved. The allocator itself does not track
	// individual frames but only a counter of allocated frames. To get
	// the list of frames we reset its internal state and "replay" the
	// allocation requests to get the correct frames.
	allocCount := EarlyAllocator.allocCount
	EarlyAllocator.allocCount, EarlyAllocator.lastAllocIndex = 0, -1
	for i := uint64(0); i < allocCount; i++ {
		frame, _ := earlyAllocFrame()
		poolIndex := alloc.poolForFrame(frame)
		alloc.markFrame(poolIndex, frame, markReserved)
		if poolIndex >= 0 {
			alloc.pools[poolIndex].refCount[frame-alloc.pools[poolIndex].startFrame] = 1
		}
	}
}

func (alloc *BitmapAllocator) printStats() {
	early.Printf(
		"[bitmap_alloc] page stats: free: %d/%d (%d reserved)\n",
		alloc.totalPages-alloc.reservedPages,
		alloc.totalPages,
		alloc.reservedPages,
	)
}

// earlyAllocFrame is a helper that delegates a frame allocation request to the
// early allocator instance.
func earlyAllocFrame() (pmm.Frame, *kernel.Error) {
	return EarlyAllocator.AllocFrame(mem.PageOrder(0))
}

// Init sets up the kernel physical memory allocation sub-system using the
// supplied free-memory regions (already normalized from whatever boot-info
// format the platform provides) and the physical bounds of the kernel image.
func Init(regions []pmm.Region, kernelStart, kernelEnd uintptr) *kernel.Error {
	EarlyAllocator.Init(regions, kernelStart, kernelEnd)
	return FrameAllocator.init(regions)
}
