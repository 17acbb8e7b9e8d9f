// Package tlb provides the translation lookaside buffer of the MMU.
package tlb

import (
	"github.com/neobench/neorom/mem/vm"
	"github.com/neobench/neorom/mem/vm/tlb/internal"
)

// An Entry is a cached page translation.
type Entry struct {
	VPage      uint32
	PPage      uint32
	Attributes vm.Attributes

	// Modified tells that the backing descriptor already carries the
	// modified bit, so writes through this entry need no table update.
	Modified bool
}

// Translate composes the physical address of vAddr from the entry.
func (e Entry) Translate(vAddr uint32, pageMask uint32) uint32 {
	return e.PPage | (vAddr & pageMask)
}

// TLB is a small fully associative cache of page translations. Entries are
// replaced in round-robin order, and there is at most one valid entry per
// virtual page.
//
// A TLB is not safe for concurrent use.
type TLB struct {
	log2PageSize uint64
	pageMask     uint32
	set          internal.Set
}

// PageMask returns the mask of the in-page offset.
func (t *TLB) PageMask() uint32 {
	return t.pageMask
}

func (t *TLB) pageOf(vAddr uint32) uint32 {
	return vAddr &^ t.pageMask
}

// Lookup finds the entry that covers vAddr.
func (t *TLB) Lookup(vAddr uint32) (Entry, bool) {
	wayID, found := t.set.Lookup(t.pageOf(vAddr))
	if !found {
		return Entry{}, false
	}

	return entryFromBlock(t.set.Block(wayID)), true
}

// Insert caches the translation of the page that holds vAddr. An existing
// entry for the same page is overwritten in place; otherwise the way under
// the round-robin cursor is replaced.
func (t *TLB) Insert(vAddr, pAddr uint32, attrs vm.Attributes) {
	vPage := t.pageOf(vAddr)

	wayID, found := t.set.Lookup(vPage)
	if !found {
		wayID = t.set.Evict()
	}

	t.set.Update(wayID, internal.Block{
		VPage:      vPage,
		PPage:      pAddr &^ t.pageMask,
		Attributes: attrs,
		Valid:      true,
	})
}

// MarkModified records that the page of vAddr has been written. It reports
// false if the page is not cached.
func (t *TLB) MarkModified(vAddr uint32) bool {
	wayID, found := t.set.Lookup(t.pageOf(vAddr))
	if !found {
		return false
	}

	block := t.set.Block(wayID)
	block.Modified = true
	t.set.Update(wayID, block)

	return true
}

// Invalidate drops the entry of the page that holds vAddr, if there is one.
func (t *TLB) Invalidate(vAddr uint32) {
	wayID, found := t.set.Lookup(t.pageOf(vAddr))
	if found {
		t.set.Invalidate(wayID)
	}
}

// FlushAll drops every entry. The replacement cursor is left where it is.
func (t *TLB) FlushAll() {
	for i := 0; i < t.set.NumWays(); i++ {
		t.set.Invalidate(i)
	}
}

// Reset drops every entry and rewinds the replacement cursor.
func (t *TLB) Reset() {
	t.set.Reset()
}

// Entries returns the valid entries in way order.
func (t *TLB) Entries() []Entry {
	var entries []Entry

	for i := 0; i < t.set.NumWays(); i++ {
		block := t.set.Block(i)
		if block.Valid {
			entries = append(entries, entryFromBlock(block))
		}
	}

	return entries
}

// NumEntries returns the capacity of the TLB.
func (t *TLB) NumEntries() int {
	return t.set.NumWays()
}

func entryFromBlock(b internal.Block) Entry {
	return Entry{
		VPage:      b.VPage,
		PPage:      b.PPage,
		Attributes: b.Attributes,
		Modified:   b.Modified,
	}
}
