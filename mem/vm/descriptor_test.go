package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Descriptor", func() {
	It("should encode a resident leaf", func() {
		attrs := MakeAttributes(CacheCopyBack, ProtReadWrite)

		d := NewLeafDescriptor(0x00500000, attrs)

		Expect(uint32(d)).To(Equal(uint32(0x00500089)))
		Expect(d.Type()).To(Equal(DescResident))
		Expect(d.PhysicalBase()).To(Equal(uint32(0x00500000)))
		Expect(d.Attributes()).To(Equal(attrs))
		Expect(d.Attributes().CacheMode()).To(Equal(CacheCopyBack))
		Expect(d.IsAccessed()).To(BeFalse())
		Expect(d.IsModified()).To(BeFalse())
	})

	It("should keep protection bits", func() {
		attrs := MakeAttributes(CacheNoCacheSerialize,
			ProtSupervisor|ProtReadOnly|ProtGlobal)

		d := NewLeafDescriptor(0x00F80000, attrs)

		Expect(d.Attributes().IsSupervisorOnly()).To(BeTrue())
		Expect(d.Attributes().IsReadOnly()).To(BeTrue())
		Expect(d.Attributes().IsGlobal()).To(BeTrue())
		Expect(d.PhysicalBase()).To(Equal(uint32(0x00F80000)))
	})

	It("should drop attribute bits outside of the attribute mask", func() {
		attrs := MakeAttributes(CacheWriteThrough, Attributes(0xFFFF0000))

		Expect(attrs).To(Equal(Attributes(CacheWriteThrough)))
	})

	It("should encode a table pointer", func() {
		d := NewTableDescriptor(0x00F01000)

		Expect(uint32(d)).To(Equal(uint32(0x00F01002)))
		Expect(d.IsIndirect()).To(BeTrue())
		Expect(d.TableHandle()).To(Equal(uint32(0x00F01000)))
		Expect(d.PhysicalBase()).To(BeZero())
		Expect(d.Attributes()).To(BeZero())
	})

	It("should set status bits without touching the type tag", func() {
		d := NewLeafDescriptor(0x1000, 0)

		d = d.WithStatus(DescAccessed)
		Expect(d.IsAccessed()).To(BeTrue())
		Expect(d.IsModified()).To(BeFalse())
		Expect(d.Type()).To(Equal(DescResident))

		d = d.WithStatus(DescModified)
		Expect(d.IsModified()).To(BeTrue())
		Expect(d.Type()).To(Equal(DescResident))
		Expect(d&DescPage4K).NotTo(BeZero())

		d = d.ClearStatus()
		Expect(d.IsAccessed()).To(BeFalse())
		Expect(d.IsModified()).To(BeFalse())
	})

	It("should not let status bits leak into other descriptor types", func() {
		Expect(Descriptor(0).WithStatus(DescAccessed)).To(BeZero())

		table := NewTableDescriptor(0x2000)
		Expect(table.WithStatus(DescModified | DescAccessed)).To(Equal(table))
	})

	It("should ignore non-status bits passed as status", func() {
		d := NewLeafDescriptor(0x1000, 0)

		Expect(d.WithStatus(Descriptor(DescIndirect))).To(Equal(d))
	})

	It("should split addresses into table indices", func() {
		vAddr := uint32(0xFE_FC_F123)

		Expect(rootIndex(vAddr)).To(Equal(0x7F))
		Expect(pointerIndex(vAddr)).To(Equal(0x3F))
		Expect(pageIndex(vAddr)).To(Equal(0x0F))
		Expect(PageOffset(vAddr)).To(Equal(uint32(0x123)))
		Expect(PageBase(vAddr)).To(Equal(uint32(0xFEFCF000)))
	})

	It("should print descriptors", func() {
		d := NewLeafDescriptor(0x00500000,
			MakeAttributes(CacheCopyBack, ProtReadWrite)).
			WithStatus(DescAccessed | DescModified)

		Expect(d.String()).To(Equal("leaf(0x00500000 copyback|rw U M)"))
		Expect(NewTableDescriptor(0x3000).String()).
			To(Equal("table(0x00003000)"))
		Expect(Descriptor(0).String()).To(Equal("invalid"))
	})
})
