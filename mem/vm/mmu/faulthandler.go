package mmu

import (
	"sync"

	"github.com/neobench/neorom/mem/vm"
)

// A FaultHandler is invoked synchronously, exactly once, for every
// translation that finds no resident page. It reports whether it resolved the
// fault. The MMU never retries the translation on its own.
type FaultHandler interface {
	Handle(vAddr uint32, isWrite bool) (handled bool)
}

// FaultHandlerFunc turns a function into a FaultHandler.
type FaultHandlerFunc func(vAddr uint32, isWrite bool) bool

// Handle calls f.
func (f FaultHandlerFunc) Handle(vAddr uint32, isWrite bool) bool {
	return f(vAddr, isWrite)
}

// DefaultFaultHandler declines every fault.
type DefaultFaultHandler struct{}

// Handle reports the fault as not handled.
func (DefaultFaultHandler) Handle(uint32, bool) bool {
	return false
}

// A Mapper can install page mappings.
type Mapper interface {
	AddMapping(vAddr, pAddr, size uint32, attrs vm.Attributes) error
}

// DemandPager resolves faults by backing the faulting page with a fresh frame.
// The translation that faulted still fails; the next one succeeds.
type DemandPager struct {
	sync.Mutex
	mapper    Mapper
	frames    vm.Allocator
	attrs     vm.Attributes
	numMapped int
}

// NewDemandPager creates a DemandPager that maps frames taken from frames
// through mapper, using attrs for every page.
func NewDemandPager(
	mapper Mapper,
	frames vm.Allocator,
	attrs vm.Attributes,
) *DemandPager {
	return &DemandPager{
		mapper: mapper,
		frames: frames,
		attrs:  attrs,
	}
}

// Handle maps the page of vAddr to a new frame.
func (p *DemandPager) Handle(vAddr uint32, _ bool) bool {
	frame, ok := p.frames.Allocate(vm.PageSize)
	if !ok {
		return false
	}

	err := p.mapper.AddMapping(vm.PageBase(vAddr), frame, vm.PageSize, p.attrs)
	if err != nil {
		p.frames.Free(frame)
		return false
	}

	p.Lock()
	p.numMapped++
	p.Unlock()

	return true
}

// NumMapped returns the number of pages the pager has mapped.
func (p *DemandPager) NumMapped() int {
	p.Lock()
	defer p.Unlock()

	return p.numMapped
}
