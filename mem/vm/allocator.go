package vm

import (
	"fmt"
	"sync"

	"github.com/google/btree"
)

// An Allocator provides the memory that backs translation tables. The
// returned handle is an opaque, page-aligned address that stays valid until
// it is freed. A false return signals that the allocation failed; the
// translation table never treats that as impossible.
type Allocator interface {
	Allocate(size uint32) (handle uint32, ok bool)
	Free(handle uint32)
}

type frame uint32

func (f frame) Less(than btree.Item) bool {
	return f < than.(frame)
}

// FramePool is an Allocator that hands out page frames from a fixed physical
// window. Free frames are kept ordered so the lowest free address is always
// reused first, which keeps table placement deterministic.
type FramePool struct {
	sync.Mutex
	base      uint32
	numFrames int
	free      *btree.BTree
	allocated map[uint32]int
}

// NewFramePool creates a pool of numFrames page frames starting at base.
func NewFramePool(base uint32, numFrames int) *FramePool {
	if !IsPageAligned(base) {
		panic(fmt.Sprintf("frame pool base 0x%08x is not page aligned", base))
	}

	if uint64(base)+uint64(numFrames)*PageSize > 1<<32 {
		panic("frame pool runs past the end of the address space")
	}

	p := &FramePool{
		base:      base,
		numFrames: numFrames,
		free:      btree.New(2),
		allocated: make(map[uint32]int),
	}

	for i := 0; i < numFrames; i++ {
		p.free.ReplaceOrInsert(frame(base + uint32(i)*PageSize))
	}

	return p
}

// Allocate reserves enough contiguous frames to hold size bytes.
func (p *FramePool) Allocate(size uint32) (uint32, bool) {
	p.Lock()
	defer p.Unlock()

	n := int((uint64(size) + PageSize - 1) / PageSize)
	if n == 0 {
		n = 1
	}

	start, found := p.findRun(n)
	if !found {
		return 0, false
	}

	for i := 0; i < n; i++ {
		p.free.Delete(frame(start + uint32(i)*PageSize))
	}
	p.allocated[start] = n

	return start, true
}

func (p *FramePool) findRun(n int) (uint32, bool) {
	var (
		start  uint32
		length int
		found  bool
	)

	p.free.Ascend(func(item btree.Item) bool {
		addr := uint32(item.(frame))
		if length > 0 && addr == start+uint32(length)*PageSize {
			length++
		} else {
			start = addr
			length = 1
		}

		if length == n {
			found = true
			return false
		}

		return true
	})

	return start, found
}

// Free returns the frames of handle to the pool.
func (p *FramePool) Free(handle uint32) {
	p.Lock()
	defer p.Unlock()

	n, ok := p.allocated[handle]
	if !ok {
		panic(fmt.Sprintf("freeing unallocated frame 0x%08x", handle))
	}

	for i := 0; i < n; i++ {
		p.free.ReplaceOrInsert(frame(handle + uint32(i)*PageSize))
	}
	delete(p.allocated, handle)
}

// Outstanding returns the number of live allocations.
func (p *FramePool) Outstanding() int {
	p.Lock()
	defer p.Unlock()

	return len(p.allocated)
}

// NumFreeFrames returns the number of frames that can still be handed out.
func (p *FramePool) NumFreeFrames() int {
	p.Lock()
	defer p.Unlock()

	return p.free.Len()
}

// Base returns the first address managed by the pool.
func (p *FramePool) Base() uint32 {
	return p.base
}

// NumFrames returns the capacity of the pool in frames.
func (p *FramePool) NumFrames() int {
	return p.numFrames
}
