package vm

import (
	"fmt"
)

// Sizes in bytes requested from the Allocator for each table level.
const (
	rootTableBytes    = NumRootEntries * 4
	pointerTableBytes = NumPointerEntries * 4
	pageTableBytes    = NumPageEntries * 4
)

// An Invalidator drops any cached translation of the page that holds vAddr.
type Invalidator interface {
	Invalidate(vAddr uint32)
}

// A Translation is the result of a successful table walk.
type Translation struct {
	VAddr      uint32
	PAddr      uint32
	Attributes Attributes
	Descriptor Descriptor
}

// A Mapping describes one resident page.
type Mapping struct {
	VAddr      uint32
	Descriptor Descriptor
}

type pointerTable struct {
	entries [NumPointerEntries]Descriptor
	used    int
}

type pageTable struct {
	entries [NumPageEntries]Descriptor
	used    int
}

// TranslationTable is a three-level radix tree that holds the authoritative
// virtual-to-physical mapping. Pointer and page tables are allocated on
// demand and freed as soon as their last entry is removed.
//
// A TranslationTable is not safe for concurrent use. The owner must serialize
// every call, including walks, since an intermediate table is briefly
// inconsistent while it is being installed.
type TranslationTable struct {
	allocator   Allocator
	invalidator Invalidator

	rootHandle    uint32
	root          [NumRootEntries]Descriptor
	pointerTables map[uint32]*pointerTable
	pageTables    map[uint32]*pageTable
}

// NewTranslationTable allocates the root table from allocator.
func NewTranslationTable(allocator Allocator) (*TranslationTable, error) {
	handle, ok := allocator.Allocate(rootTableBytes)
	if !ok {
		return nil, fmt.Errorf("allocate root table: %w", ErrOutOfMemory)
	}

	t := &TranslationTable{
		allocator:     allocator,
		rootHandle:    handle,
		pointerTables: make(map[uint32]*pointerTable),
		pageTables:    make(map[uint32]*pageTable),
	}

	return t, nil
}

// SetInvalidator sets the cache that must forget pages whose leaf changes.
func (t *TranslationTable) SetInvalidator(inv Invalidator) {
	t.invalidator = inv
}

// RootPointer returns the handle of the root table.
func (t *TranslationTable) RootPointer() uint32 {
	return t.rootHandle
}

// AddMapping maps size bytes starting at vAddr to the physical range starting
// at pAddr. The size is rounded up to whole pages.
//
// The call is atomic. If a table cannot be allocated part way through the
// range, every page installed by this call is restored to its previous state
// and ErrOutOfMemory is returned.
func (t *TranslationTable) AddMapping(
	vAddr, pAddr, size uint32,
	attrs Attributes,
) error {
	if !IsPageAligned(vAddr) || !IsPageAligned(pAddr) {
		return fmt.Errorf("map 0x%08x -> 0x%08x: %w",
			vAddr, pAddr, ErrInvalidAlignment)
	}

	numPages, err := pagesInRange(vAddr, pAddr, size)
	if err != nil {
		return fmt.Errorf("map 0x%08x -> 0x%08x size 0x%x: %w",
			vAddr, pAddr, size, err)
	}

	installed := make([]Mapping, 0, numPages)
	for i := uint32(0); i < numPages; i++ {
		v := vAddr + i*PageSize
		p := pAddr + i*PageSize

		prev, err := t.installLeaf(v, NewLeafDescriptor(p, attrs))
		if err != nil {
			t.rollback(installed)
			return fmt.Errorf("map 0x%08x -> 0x%08x: %w", v, p, err)
		}

		installed = append(installed, Mapping{VAddr: v, Descriptor: prev})
		t.invalidate(v)
	}

	return nil
}

func pagesInRange(vAddr, pAddr, size uint32) (uint32, error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	rounded := (uint64(size) + PageSize - 1) &^ uint64(PageMask)
	if uint64(vAddr)+rounded > 1<<32 || uint64(pAddr)+rounded > 1<<32 {
		return 0, ErrInvalidSize
	}

	return uint32(rounded / PageSize), nil
}

func (t *TranslationTable) installLeaf(
	vAddr uint32,
	leaf Descriptor,
) (prev Descriptor, err error) {
	ri, pi, gi := rootIndex(vAddr), pointerIndex(vAddr), pageIndex(vAddr)

	ptrTable, created, err := t.ensurePointerTable(ri)
	if err != nil {
		return 0, err
	}

	pgTable, err := t.ensurePageTable(ptrTable, pi)
	if err != nil {
		if created {
			t.releasePointerTable(ri)
		}
		return 0, err
	}

	prev = pgTable.entries[gi]
	if !prev.IsResident() {
		pgTable.used++
	}
	pgTable.entries[gi] = leaf

	return prev, nil
}

func (t *TranslationTable) ensurePointerTable(
	ri int,
) (table *pointerTable, created bool, err error) {
	if d := t.root[ri]; d.IsIndirect() {
		return t.pointerTables[d.TableHandle()], false, nil
	}

	handle, ok := t.allocator.Allocate(pointerTableBytes)
	if !ok {
		return nil, false, ErrOutOfMemory
	}

	table = &pointerTable{}
	t.pointerTables[handle] = table
	t.root[ri] = NewTableDescriptor(handle)

	return table, true, nil
}

func (t *TranslationTable) ensurePageTable(
	ptrTable *pointerTable,
	pi int,
) (*pageTable, error) {
	if d := ptrTable.entries[pi]; d.IsIndirect() {
		return t.pageTables[d.TableHandle()], nil
	}

	handle, ok := t.allocator.Allocate(pageTableBytes)
	if !ok {
		return nil, ErrOutOfMemory
	}

	table := &pageTable{}
	t.pageTables[handle] = table
	ptrTable.entries[pi] = NewTableDescriptor(handle)
	ptrTable.used++

	return table, nil
}

func (t *TranslationTable) rollback(installed []Mapping) {
	for i := len(installed) - 1; i >= 0; i-- {
		m := installed[i]

		if m.Descriptor.IsResident() {
			pgTable, gi, _ := t.walk(m.VAddr)
			pgTable.entries[gi] = m.Descriptor
		} else {
			t.clearLeaf(m.VAddr)
		}

		t.invalidate(m.VAddr)
	}
}

// RemoveMapping unmaps the page at vAddr. Tables left empty are freed, from
// the page table upward.
func (t *TranslationTable) RemoveMapping(vAddr uint32) error {
	if !IsPageAligned(vAddr) {
		return fmt.Errorf("unmap 0x%08x: %w", vAddr, ErrInvalidAlignment)
	}

	if _, _, found := t.walk(vAddr); !found {
		return fmt.Errorf("unmap 0x%08x: %w", vAddr, ErrMappingNotFound)
	}

	t.clearLeaf(vAddr)
	t.invalidate(vAddr)

	return nil
}

// clearLeaf removes a resident leaf that is known to exist.
func (t *TranslationTable) clearLeaf(vAddr uint32) {
	ri, pi, gi := rootIndex(vAddr), pointerIndex(vAddr), pageIndex(vAddr)

	ptrHandle := t.root[ri].TableHandle()
	ptrTable := t.pointerTables[ptrHandle]
	pgHandle := ptrTable.entries[pi].TableHandle()
	pgTable := t.pageTables[pgHandle]

	pgTable.entries[gi] = 0
	pgTable.used--
	if pgTable.used > 0 {
		return
	}

	ptrTable.entries[pi] = 0
	ptrTable.used--
	delete(t.pageTables, pgHandle)
	t.allocator.Free(pgHandle)

	if ptrTable.used == 0 {
		t.releasePointerTable(ri)
	}
}

func (t *TranslationTable) releasePointerTable(ri int) {
	handle := t.root[ri].TableHandle()

	t.root[ri] = 0
	delete(t.pointerTables, handle)
	t.allocator.Free(handle)
}

// walk finds the page table and slot that hold the resident leaf of vAddr.
func (t *TranslationTable) walk(vAddr uint32) (*pageTable, int, bool) {
	rootDesc := t.root[rootIndex(vAddr)]
	if !rootDesc.IsIndirect() {
		return nil, 0, false
	}

	ptrTable := t.pointerTables[rootDesc.TableHandle()]
	ptrDesc := ptrTable.entries[pointerIndex(vAddr)]
	if !ptrDesc.IsIndirect() {
		return nil, 0, false
	}

	pgTable := t.pageTables[ptrDesc.TableHandle()]
	gi := pageIndex(vAddr)
	if !pgTable.entries[gi].IsResident() {
		return nil, 0, false
	}

	return pgTable, gi, true
}

// TranslateSlow walks the tables for vAddr. A successful walk marks the page
// accessed, and modified as well if isWrite is set. A failed walk returns
// ErrTranslationFault and changes nothing.
func (t *TranslationTable) TranslateSlow(
	vAddr uint32,
	isWrite bool,
) (Translation, error) {
	pgTable, gi, found := t.walk(vAddr)
	if !found {
		return Translation{}, fmt.Errorf("walk 0x%08x: %w",
			vAddr, ErrTranslationFault)
	}

	status := DescAccessed
	if isWrite {
		status |= DescModified
	}

	d := pgTable.entries[gi].WithStatus(status)
	pgTable.entries[gi] = d

	tr := Translation{
		VAddr:      vAddr,
		PAddr:      d.PhysicalBase() | PageOffset(vAddr),
		Attributes: d.Attributes(),
		Descriptor: d,
	}

	return tr, nil
}

// MarkModified sets the modified bit of the leaf that maps vAddr. It reports
// false if the page is not mapped.
func (t *TranslationTable) MarkModified(vAddr uint32) bool {
	pgTable, gi, found := t.walk(vAddr)
	if !found {
		return false
	}

	pgTable.entries[gi] = pgTable.entries[gi].WithStatus(DescModified)

	return true
}

// Lookup returns the leaf descriptor of vAddr without touching status bits.
func (t *TranslationTable) Lookup(vAddr uint32) (Descriptor, bool) {
	pgTable, gi, found := t.walk(vAddr)
	if !found {
		return 0, false
	}

	return pgTable.entries[gi], true
}

// Clear removes every mapping and frees all intermediate tables. The root
// table is kept.
func (t *TranslationTable) Clear() {
	for ri, rootDesc := range t.root {
		if !rootDesc.IsIndirect() {
			continue
		}

		ptrTable := t.pointerTables[rootDesc.TableHandle()]
		for pi, ptrDesc := range ptrTable.entries {
			if !ptrDesc.IsIndirect() {
				continue
			}

			delete(t.pageTables, ptrDesc.TableHandle())
			t.allocator.Free(ptrDesc.TableHandle())
			ptrTable.entries[pi] = 0
		}

		ptrTable.used = 0
		t.releasePointerTable(ri)
	}
}

// Mappings lists every resident page in ascending virtual address order.
func (t *TranslationTable) Mappings() []Mapping {
	var mappings []Mapping

	for ri, rootDesc := range t.root {
		if !rootDesc.IsIndirect() {
			continue
		}

		ptrTable := t.pointerTables[rootDesc.TableHandle()]
		for pi, ptrDesc := range ptrTable.entries {
			if !ptrDesc.IsIndirect() {
				continue
			}

			pgTable := t.pageTables[ptrDesc.TableHandle()]
			for gi, leaf := range pgTable.entries {
				if !leaf.IsResident() {
					continue
				}

				vAddr := uint32(ri)<<rootShift |
					uint32(pi)<<pointerShift |
					uint32(gi)<<pageShift
				mappings = append(mappings,
					Mapping{VAddr: vAddr, Descriptor: leaf})
			}
		}
	}

	return mappings
}

// NumPointerTables returns the number of live pointer tables.
func (t *TranslationTable) NumPointerTables() int {
	return len(t.pointerTables)
}

// NumPageTables returns the number of live page tables.
func (t *TranslationTable) NumPageTables() int {
	return len(t.pageTables)
}

// NumMappedPages returns the number of resident leaves.
func (t *TranslationTable) NumMappedPages() int {
	n := 0
	for _, pgTable := range t.pageTables {
		n += pgTable.used
	}

	return n
}

func (t *TranslationTable) invalidate(vAddr uint32) {
	if t.invalidator != nil {
		t.invalidator.Invalidate(vAddr)
	}
}
