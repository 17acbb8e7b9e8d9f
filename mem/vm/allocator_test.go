package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FramePool", func() {
	var pool *FramePool

	BeforeEach(func() {
		pool = NewFramePool(0x00F00000, 4)
	})

	It("should hand out the lowest free frame", func() {
		a, ok := pool.Allocate(256)
		Expect(ok).To(BeTrue())
		Expect(a).To(Equal(uint32(0x00F00000)))

		b, ok := pool.Allocate(512)
		Expect(ok).To(BeTrue())
		Expect(b).To(Equal(uint32(0x00F01000)))

		pool.Free(a)

		c, ok := pool.Allocate(1)
		Expect(ok).To(BeTrue())
		Expect(c).To(Equal(uint32(0x00F00000)))
		Expect(pool.Outstanding()).To(Equal(2))
	})

	It("should fail when exhausted", func() {
		for i := 0; i < 4; i++ {
			_, ok := pool.Allocate(PageSize)
			Expect(ok).To(BeTrue())
		}

		_, ok := pool.Allocate(1)

		Expect(ok).To(BeFalse())
		Expect(pool.NumFreeFrames()).To(BeZero())
	})

	It("should allocate contiguous frames for large requests", func() {
		a, _ := pool.Allocate(PageSize)
		_, _ = pool.Allocate(PageSize)
		pool.Free(a)

		big, ok := pool.Allocate(2 * PageSize)

		Expect(ok).To(BeTrue())
		Expect(big).To(Equal(uint32(0x00F02000)))
		Expect(pool.NumFreeFrames()).To(Equal(1))

		pool.Free(big)
		Expect(pool.NumFreeFrames()).To(Equal(3))
	})

	It("should refuse runs that are not contiguous", func() {
		a, _ := pool.Allocate(PageSize)
		_, _ = pool.Allocate(PageSize)
		c, _ := pool.Allocate(PageSize)
		_, _ = pool.Allocate(PageSize)
		pool.Free(a)
		pool.Free(c)

		_, ok := pool.Allocate(2 * PageSize)

		Expect(ok).To(BeFalse())
	})

	It("should panic when freeing an unknown handle", func() {
		Expect(func() { pool.Free(0x00F00000) }).To(Panic())
	})

	It("should panic on unaligned base", func() {
		Expect(func() { NewFramePool(0x10, 1) }).To(Panic())
	})
})
