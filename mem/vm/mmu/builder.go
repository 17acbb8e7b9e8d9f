package mmu

import (
	"github.com/neobench/neorom/mem/vm"
	"github.com/neobench/neorom/mem/vm/tlb"
)

// Default placement of the translation table pool.
const (
	DefaultTablePoolBase   = 0x00F00000
	DefaultTablePoolFrames = 128
)

// A Builder can build MMU component
type Builder struct {
	allocator     vm.Allocator
	faultHandler  FaultHandler
	numTLBEntries int
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		faultHandler:  DefaultFaultHandler{},
		numTLBEntries: 32,
	}
}

// WithAllocator sets the allocator that provides memory for translation
// tables. Without one, a frame pool of DefaultTablePoolFrames frames at
// DefaultTablePoolBase is used.
func (b Builder) WithAllocator(allocator vm.Allocator) Builder {
	b.allocator = allocator
	return b
}

// WithFaultHandler sets the handler invoked on translation faults.
func (b Builder) WithFaultHandler(h FaultHandler) Builder {
	b.faultHandler = h
	return b
}

// WithNumTLBEntries sets the capacity of the TLB.
func (b Builder) WithNumTLBEntries(n int) Builder {
	b.numTLBEntries = n
	return b
}

// Build returns a newly created MMU component. The MMU is initialized and
// disabled. Build panics if the root table cannot be allocated.
func (b Builder) Build(name string) *Comp {
	c := new(Comp)
	c.name = name

	b.createTables(c)
	b.configureInternalStates(c)

	c.Init()

	return c
}

func (b Builder) createTables(c *Comp) {
	allocator := b.allocator
	if allocator == nil {
		allocator = vm.NewFramePool(DefaultTablePoolBase, DefaultTablePoolFrames)
	}

	table, err := vm.NewTranslationTable(allocator)
	if err != nil {
		panic(err)
	}

	c.tlb = tlb.MakeBuilder().
		WithNumEntries(b.numTLBEntries).
		WithLog2PageSize(vm.Log2PageSize).
		Build()

	table.SetInvalidator(c.tlb)
	c.table = table
}

func (b Builder) configureInternalStates(c *Comp) {
	c.faultHandler = b.faultHandler
	if c.faultHandler == nil {
		c.faultHandler = DefaultFaultHandler{}
	}
}
