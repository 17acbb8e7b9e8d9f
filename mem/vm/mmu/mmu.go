// Package mmu provides the software memory management unit of the boot ROM.
package mmu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/neobench/neorom/mem/vm"
	"github.com/neobench/neorom/mem/vm/tlb"
	"github.com/neobench/neorom/sim"
)

// DefaultTranslationControl selects 4 KiB pages with table search enabled.
const DefaultTranslationControl = 0x00008000

// NumTransparentWindows is the number of transparent translation registers.
const NumTransparentWindows = 4

// ErrInvalidWindow is returned when a transparent translation register index
// is out of range.
var ErrInvalidWindow = errors.New("invalid transparent translation window")

// Hook positions. Hooks run after the MMU lock is released.
var (
	// HookPosTLBHit fires when a translation is served by the TLB. The item
	// is an Access.
	HookPosTLBHit = &sim.HookPos{Name: "TLBHit"}

	// HookPosTLBMiss fires when a TLB miss is resolved by a table walk. The
	// item is an Access.
	HookPosTLBMiss = &sim.HookPos{Name: "TLBMiss"}

	// HookPosFault fires after the fault handler ran. The item is a
	// *FaultError.
	HookPosFault = &sim.HookPos{Name: "Fault"}

	// HookPosMap fires after a successful AddMapping. The item is a
	// MappingChange.
	HookPosMap = &sim.HookPos{Name: "Map"}

	// HookPosUnmap fires after a successful RemoveMapping. The item is a
	// MappingChange.
	HookPosUnmap = &sim.HookPos{Name: "Unmap"}

	// HookPosEnable fires when translation is turned on.
	HookPosEnable = &sim.HookPos{Name: "Enable"}

	// HookPosDisable fires when translation is turned off.
	HookPosDisable = &sim.HookPos{Name: "Disable"}
)

// An Access describes one resolved translation.
type Access struct {
	VAddr   uint32
	PAddr   uint32
	IsWrite bool
}

// A MappingChange describes a mapping that was added or removed.
type MappingChange struct {
	VAddr      uint32
	PAddr      uint32
	Size       uint32
	Attributes vm.Attributes
}

// A FaultError reports a translation that found no resident page.
// errors.Is(err, vm.ErrTranslationFault) always holds, and
// errors.Is(err, vm.ErrPageFaultUnhandled) holds when the fault handler
// declined the fault.
type FaultError struct {
	VAddr   uint32
	IsWrite bool
	Handled bool
}

func (e *FaultError) Error() string {
	access := "read"
	if e.IsWrite {
		access = "write"
	}

	msg := fmt.Sprintf("%s fault at 0x%08x", access, e.VAddr)
	if !e.Handled {
		msg += ", not handled"
	}

	return msg
}

// Unwrap exposes the sentinel errors of the fault.
func (e *FaultError) Unwrap() []error {
	if e.Handled {
		return []error{vm.ErrTranslationFault}
	}

	return []error{vm.ErrTranslationFault, vm.ErrPageFaultUnhandled}
}

// Registers mirror the configuration surface of the CPU MMU. They do not
// influence the translation algorithm.
type Registers struct {
	Enabled bool

	// URP and SRP are the user and supervisor root pointers.
	URP uint32
	SRP uint32

	// TC is the translation control register.
	TC uint32

	// TT holds the transparent translation windows ITT0, ITT1, DTT0 and
	// DTT1, in that order.
	TT [NumTransparentWindows]uint32
}

// Stats are the monotonic counters of the MMU.
type Stats struct {
	PageFaults uint64
	TLBMisses  uint64
	TLBHits    uint64
}

// TableUsage reports how many translation tables and pages are live.
type TableUsage struct {
	PointerTables int
	PageTables    int
	MappedPages   int
}

// Comp is the software MMU. It owns one translation table and one TLB and
// serializes every access to them.
type Comp struct {
	sim.HookableBase
	sync.Mutex

	name         string
	table        *vm.TranslationTable
	tlb          *tlb.TLB
	faultHandler FaultHandler

	regs  Registers
	stats Stats
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// Init clears all tables, the TLB and the counters, resets the registers and
// leaves translation disabled.
func (c *Comp) Init() {
	c.Lock()
	defer c.Unlock()

	c.table.Clear()
	c.tlb.Reset()
	c.stats = Stats{}
	c.regs = Registers{
		TC:  DefaultTranslationControl,
		URP: c.table.RootPointer(),
		SRP: c.table.RootPointer(),
	}
}

// Enable turns translation on. The TLB is flushed on every transition from
// disabled to enabled; enabling an enabled MMU does nothing.
func (c *Comp) Enable() {
	c.Lock()
	if c.regs.Enabled {
		c.Unlock()
		return
	}

	c.regs.Enabled = true
	c.tlb.FlushAll()
	c.Unlock()

	c.invokeHook(HookPosEnable, nil)
}

// Disable turns translation off. The TLB is kept, since it is never consulted
// while translation is disabled.
func (c *Comp) Disable() {
	c.Lock()
	if !c.regs.Enabled {
		c.Unlock()
		return
	}

	c.regs.Enabled = false
	c.Unlock()

	c.invokeHook(HookPosDisable, nil)
}

// IsEnabled tells if translation is on.
func (c *Comp) IsEnabled() bool {
	c.Lock()
	defer c.Unlock()

	return c.regs.Enabled
}

// AddMapping maps size bytes at vAddr to pAddr. See
// vm.TranslationTable.AddMapping for the failure semantics.
func (c *Comp) AddMapping(
	vAddr, pAddr, size uint32,
	attrs vm.Attributes,
) error {
	c.Lock()
	err := c.table.AddMapping(vAddr, pAddr, size, attrs)
	c.Unlock()

	if err != nil {
		return err
	}

	c.invokeHook(HookPosMap, MappingChange{
		VAddr:      vAddr,
		PAddr:      pAddr,
		Size:       size,
		Attributes: attrs & vm.AttributeMask,
	})

	return nil
}

// RemoveMapping unmaps the page at vAddr.
func (c *Comp) RemoveMapping(vAddr uint32) error {
	c.Lock()
	d, _ := c.table.Lookup(vAddr)
	err := c.table.RemoveMapping(vAddr)
	c.Unlock()

	if err != nil {
		return err
	}

	c.invokeHook(HookPosUnmap, MappingChange{
		VAddr:      vAddr,
		PAddr:      d.PhysicalBase(),
		Size:       vm.PageSize,
		Attributes: d.Attributes(),
	})

	return nil
}

// Translate returns the physical address of vAddr. While translation is
// disabled the address is returned unchanged. When no page is resident the
// fault handler is invoked once and a *FaultError is returned; the address
// result must be ignored in that case.
func (c *Comp) Translate(vAddr uint32, isWrite bool) (uint32, error) {
	c.Lock()

	if !c.regs.Enabled {
		c.Unlock()
		return vAddr, nil
	}

	if entry, found := c.tlb.Lookup(vAddr); found {
		c.stats.TLBHits++

		if isWrite && !entry.Modified {
			c.table.MarkModified(vAddr)
			c.tlb.MarkModified(vAddr)
		}

		pAddr := entry.Translate(vAddr, c.tlb.PageMask())
		c.Unlock()

		c.invokeHook(HookPosTLBHit,
			Access{VAddr: vAddr, PAddr: pAddr, IsWrite: isWrite})

		return pAddr, nil
	}

	c.stats.TLBMisses++

	tr, err := c.table.TranslateSlow(vAddr, isWrite)
	if err == nil {
		c.tlb.Insert(vAddr, tr.PAddr, tr.Attributes)
		if tr.Descriptor.IsModified() {
			c.tlb.MarkModified(vAddr)
		}
		c.Unlock()

		c.invokeHook(HookPosTLBMiss,
			Access{VAddr: vAddr, PAddr: tr.PAddr, IsWrite: isWrite})

		return tr.PAddr, nil
	}

	c.stats.PageFaults++
	handler := c.faultHandler
	c.Unlock()

	fault := &FaultError{
		VAddr:   vAddr,
		IsWrite: isWrite,
		Handled: handler.Handle(vAddr, isWrite),
	}

	c.invokeHook(HookPosFault, fault)

	return 0, fault
}

// SetFaultHandler replaces the fault handler. A nil handler restores the
// default handler.
func (c *Comp) SetFaultHandler(h FaultHandler) {
	if h == nil {
		h = DefaultFaultHandler{}
	}

	c.Lock()
	defer c.Unlock()

	c.faultHandler = h
}

// SetTranslationControl sets the translation control register.
func (c *Comp) SetTranslationControl(tc uint32) {
	c.Lock()
	defer c.Unlock()

	c.regs.TC = tc
}

// SetUserRootPointer sets the user root pointer.
func (c *Comp) SetUserRootPointer(urp uint32) {
	c.Lock()
	defer c.Unlock()

	c.regs.URP = urp
}

// SetSupervisorRootPointer sets the supervisor root pointer.
func (c *Comp) SetSupervisorRootPointer(srp uint32) {
	c.Lock()
	defer c.Unlock()

	c.regs.SRP = srp
}

// SetTransparentTranslation sets transparent translation window index, where
// 0 and 1 are the instruction windows and 2 and 3 the data windows.
func (c *Comp) SetTransparentTranslation(index int, value uint32) error {
	if index < 0 || index >= NumTransparentWindows {
		return fmt.Errorf("window %d: %w", index, ErrInvalidWindow)
	}

	c.Lock()
	defer c.Unlock()

	c.regs.TT[index] = value

	return nil
}

// FlushTLB drops every cached translation.
func (c *Comp) FlushTLB() {
	c.Lock()
	defer c.Unlock()

	c.tlb.FlushAll()
}

// FlushTLBEntry drops the cached translation of the page that holds vAddr.
func (c *Comp) FlushTLBEntry(vAddr uint32) {
	c.Lock()
	defer c.Unlock()

	c.tlb.Invalidate(vAddr)
}

// InvalidateCache stands in for invalidating the CPU caches. With no caches
// to model, only the TLB is flushed.
func (c *Comp) InvalidateCache() {
	c.FlushTLB()
}

// Registers returns a copy of the MMU registers.
func (c *Comp) Registers() Registers {
	c.Lock()
	defer c.Unlock()

	return c.regs
}

// Stats returns a copy of the counters.
func (c *Comp) Stats() Stats {
	c.Lock()
	defer c.Unlock()

	return c.stats
}

// TableUsage reports the number of live tables and mapped pages.
func (c *Comp) TableUsage() TableUsage {
	c.Lock()
	defer c.Unlock()

	return TableUsage{
		PointerTables: c.table.NumPointerTables(),
		PageTables:    c.table.NumPageTables(),
		MappedPages:   c.table.NumMappedPages(),
	}
}

// TLBEntries returns the valid TLB entries.
func (c *Comp) TLBEntries() []tlb.Entry {
	c.Lock()
	defer c.Unlock()

	return c.tlb.Entries()
}

// Lookup returns the leaf descriptor that maps vAddr without updating status
// bits or counters.
func (c *Comp) Lookup(vAddr uint32) (vm.Descriptor, bool) {
	c.Lock()
	defer c.Unlock()

	return c.table.Lookup(vAddr)
}

// Mappings lists every mapped page in ascending virtual address order.
func (c *Comp) Mappings() []vm.Mapping {
	c.Lock()
	defer c.Unlock()

	return c.table.Mappings()
}

func (c *Comp) invokeHook(pos *sim.HookPos, item interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
	})
}
