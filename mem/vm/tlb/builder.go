package tlb

import (
	"github.com/neobench/neorom/mem/vm"
	"github.com/neobench/neorom/mem/vm/tlb/internal"
)

// A Builder can build TLBs
type Builder struct {
	numEntries   int
	log2PageSize uint64
}

// MakeBuilder returns a Builder
func MakeBuilder() Builder {
	return Builder{
		numEntries:   32,
		log2PageSize: vm.Log2PageSize,
	}
}

// WithNumEntries sets the number of entries in the TLB.
func (b Builder) WithNumEntries(n int) Builder {
	b.numEntries = n
	return b
}

// WithLog2PageSize sets the page size as a power of 2
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// Build creates a new TLB
func (b Builder) Build() *TLB {
	if b.log2PageSize == 0 || b.log2PageSize > 31 {
		panic("page size must be between 2 bytes and 2 GiB")
	}

	t := &TLB{
		log2PageSize: b.log2PageSize,
		pageMask:     uint32(1)<<b.log2PageSize - 1,
		set:          internal.NewSet(b.numEntries),
	}

	return t
}
