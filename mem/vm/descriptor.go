package vm

import "fmt"

// Page geometry. Virtual addresses are split as root index (31:25), pointer
// index (24:18), page index (17:12) and in-page offset (11:0).
const (
	Log2PageSize = 12
	PageSize     = 1 << Log2PageSize
	PageMask     = PageSize - 1

	NumRootEntries    = 128
	NumPointerEntries = 128
	NumPageEntries    = 64

	rootShift    = 25
	pointerShift = 18
	pageShift    = Log2PageSize
)

// DescriptorType is the type tag held in bits 1:0 of a descriptor.
type DescriptorType uint32

// Descriptor types.
const (
	DescInvalid  DescriptorType = 0x0
	DescResident DescriptorType = 0x1
	DescIndirect DescriptorType = 0x2
)

func (t DescriptorType) String() string {
	switch t {
	case DescInvalid:
		return "invalid"
	case DescResident:
		return "resident"
	case DescIndirect:
		return "indirect"
	default:
		return fmt.Sprintf("reserved(%d)", uint32(t))
	}
}

// CacheMode selects how the CPU caches accesses to a page. It occupies bits
// 7:6 of both Attributes and leaf descriptors.
type CacheMode uint32

// Cache modes.
const (
	CacheNoCache          CacheMode = 0x00
	CacheWriteThrough     CacheMode = 0x40
	CacheCopyBack         CacheMode = 0x80
	CacheNoCacheSerialize CacheMode = 0xC0
)

func (m CacheMode) String() string {
	switch m {
	case CacheNoCache:
		return "nocache"
	case CacheWriteThrough:
		return "writethrough"
	case CacheCopyBack:
		return "copyback"
	case CacheNoCacheSerialize:
		return "nocache-serialize"
	default:
		return fmt.Sprintf("cachemode(0x%x)", uint32(m))
	}
}

// Attributes are the caller-controlled bits of a page mapping: the caching
// mode and the protection bits. Status bits can never be set through
// Attributes.
type Attributes uint32

// Protection bits.
const (
	ProtReadWrite  Attributes = 0x000
	ProtSupervisor Attributes = 0x100
	ProtReadOnly   Attributes = 0x200
	ProtGlobal     Attributes = 0x400
)

const (
	cacheModeMask  = 0xC0
	protectionMask = 0x700

	// AttributeMask covers every bit a caller may pass in Attributes.
	AttributeMask = cacheModeMask | protectionMask
)

// MakeAttributes combines a cache mode with protection bits.
func MakeAttributes(mode CacheMode, prot Attributes) Attributes {
	return (Attributes(mode) | prot) & AttributeMask
}

// CacheMode returns the caching mode.
func (a Attributes) CacheMode() CacheMode {
	return CacheMode(a & cacheModeMask)
}

// IsSupervisorOnly tells if only supervisor accesses are allowed.
func (a Attributes) IsSupervisorOnly() bool {
	return a&ProtSupervisor != 0
}

// IsReadOnly tells if the page is write protected.
func (a Attributes) IsReadOnly() bool {
	return a&ProtReadOnly != 0
}

// IsGlobal tells if the mapping is shared by every address space.
func (a Attributes) IsGlobal() bool {
	return a&ProtGlobal != 0
}

func (a Attributes) String() string {
	s := a.CacheMode().String()
	if a.IsSupervisorOnly() {
		s += "|super"
	}
	if a.IsReadOnly() {
		s += "|ro"
	} else {
		s += "|rw"
	}
	if a.IsGlobal() {
		s += "|global"
	}
	return s
}

// Descriptor bits that are neither the type tag nor attributes.
const (
	descTypeMask = 0x3

	// DescModified is set by the translator on the first write to a page.
	DescModified Descriptor = 0x04
	// DescPage4K marks a leaf as a 4 KiB page.
	DescPage4K Descriptor = 0x08
	// DescPage8K marks a leaf as an 8 KiB page.
	DescPage8K Descriptor = 0x10
	// DescAccessed is set by the translator on every resolved walk.
	DescAccessed Descriptor = 0x20

	statusMask       = DescModified | DescAccessed
	leafAddressMask  = 0xFFFFF000
	tableAddressMask = 0xFFFFFF00
)

// A Descriptor is the packed word stored in every table slot. The type tag in
// bits 1:0 decides how the remaining bits are read: a resident leaf carries a
// page base, attributes and status bits, an indirect entry carries the handle
// of the next-level table, and an invalid entry carries nothing.
type Descriptor uint32

// NewLeafDescriptor builds a resident 4 KiB leaf. pAddr must be page-aligned.
func NewLeafDescriptor(pAddr uint32, attrs Attributes) Descriptor {
	return Descriptor(pAddr&leafAddressMask) |
		Descriptor(attrs&AttributeMask) |
		DescPage4K |
		Descriptor(DescResident)
}

// NewTableDescriptor builds an indirect descriptor that points at the table
// identified by handle.
func NewTableDescriptor(handle uint32) Descriptor {
	return Descriptor(handle&tableAddressMask) | Descriptor(DescIndirect)
}

// Type returns the type tag.
func (d Descriptor) Type() DescriptorType {
	return DescriptorType(d & descTypeMask)
}

// IsResident tells if the descriptor is a resident leaf.
func (d Descriptor) IsResident() bool {
	return d.Type() == DescResident
}

// IsIndirect tells if the descriptor points at a next-level table.
func (d Descriptor) IsIndirect() bool {
	return d.Type() == DescIndirect
}

// PhysicalBase returns the page base of a resident leaf.
func (d Descriptor) PhysicalBase() uint32 {
	if !d.IsResident() {
		return 0
	}
	return uint32(d) & leafAddressMask
}

// TableHandle returns the next-level table handle of an indirect descriptor.
func (d Descriptor) TableHandle() uint32 {
	if !d.IsIndirect() {
		return 0
	}
	return uint32(d) & tableAddressMask
}

// Attributes returns the cache mode and protection bits of a resident leaf.
func (d Descriptor) Attributes() Attributes {
	if !d.IsResident() {
		return 0
	}
	return Attributes(d) & AttributeMask
}

// IsAccessed tells if the page has been resolved by a walk.
func (d Descriptor) IsAccessed() bool {
	return d.IsResident() && d&DescAccessed != 0
}

// IsModified tells if the page has been written through a translation.
func (d Descriptor) IsModified() bool {
	return d.IsResident() && d&DescModified != 0
}

// WithStatus ORs status bits into a resident leaf. Only DescAccessed and
// DescModified are accepted and other descriptor types are returned unchanged,
// so the type tag is always preserved.
func (d Descriptor) WithStatus(status Descriptor) Descriptor {
	if !d.IsResident() {
		return d
	}
	return d | (status & statusMask)
}

// ClearStatus drops the accessed and modified bits.
func (d Descriptor) ClearStatus() Descriptor {
	return d &^ statusMask
}

func (d Descriptor) String() string {
	switch d.Type() {
	case DescResident:
		s := fmt.Sprintf("leaf(0x%08x %s", d.PhysicalBase(), d.Attributes())
		if d.IsAccessed() {
			s += " U"
		}
		if d.IsModified() {
			s += " M"
		}
		return s + ")"
	case DescIndirect:
		return fmt.Sprintf("table(0x%08x)", d.TableHandle())
	default:
		return d.Type().String()
	}
}

// IsPageAligned tells if addr is a multiple of PageSize.
func IsPageAligned(addr uint32) bool {
	return addr&PageMask == 0
}

// PageBase drops the in-page offset of addr.
func PageBase(addr uint32) uint32 {
	return addr &^ PageMask
}

// PageOffset returns the in-page offset of addr.
func PageOffset(addr uint32) uint32 {
	return addr & PageMask
}

func rootIndex(vAddr uint32) int {
	return int(vAddr>>rootShift) & (NumRootEntries - 1)
}

func pointerIndex(vAddr uint32) int {
	return int(vAddr>>pointerShift) & (NumPointerEntries - 1)
}

func pageIndex(vAddr uint32) int {
	return int(vAddr>>pageShift) & (NumPageEntries - 1)
}
