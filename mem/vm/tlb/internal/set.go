// Package internal provides the storage behind the TLB.
package internal

import "github.com/neobench/neorom/mem/vm"

// A Block is one way of a set.
type Block struct {
	VPage      uint32
	PPage      uint32
	Attributes vm.Attributes
	Modified   bool
	Valid      bool
}

// A Set holds a fixed number of blocks. Lookup, Update, Evict and Invalidate
// are the operations which we can perform on a set.
type Set interface {
	Lookup(vPage uint32) (wayID int, found bool)
	Block(wayID int) Block
	Update(wayID int, block Block)
	Evict() (wayID int)
	Invalidate(wayID int)
	Reset()
	NumWays() int
}

// NewSet creates a set that replaces its ways in round-robin order.
func NewSet(numWays int) Set {
	if numWays <= 0 {
		panic("a set needs at least one way")
	}

	s := &roundRobinSet{}
	s.blocks = make([]Block, numWays)

	return s
}

type roundRobinSet struct {
	blocks     []Block
	nextVictim int
}

// Lookup scans every valid block for vPage.
func (s *roundRobinSet) Lookup(vPage uint32) (wayID int, found bool) {
	for i := range s.blocks {
		if s.blocks[i].Valid && s.blocks[i].VPage == vPage {
			return i, true
		}
	}

	return 0, false
}

func (s *roundRobinSet) Block(wayID int) Block {
	return s.blocks[wayID]
}

func (s *roundRobinSet) Update(wayID int, block Block) {
	s.blocks[wayID] = block
}

// Evict returns the way under the cursor and advances the cursor. The way is
// returned whether or not it holds a valid block.
func (s *roundRobinSet) Evict() (wayID int) {
	wayID = s.nextVictim
	s.nextVictim = (s.nextVictim + 1) % len(s.blocks)

	return wayID
}

func (s *roundRobinSet) Invalidate(wayID int) {
	s.blocks[wayID].Valid = false
}

// Reset invalidates every block and rewinds the cursor.
func (s *roundRobinSet) Reset() {
	for i := range s.blocks {
		s.blocks[i] = Block{}
	}
	s.nextVictim = 0
}

func (s *roundRobinSet) NumWays() int {
	return len(s.blocks)
}
