package mmu

import (
	"bytes"
	"log"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neobench/neorom/mem/vm"
)

type fakeRecorder struct {
	tables  []string
	entries map[string][]any
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: make(map[string][]any)}
}

func (r *fakeRecorder) CreateTable(tableName string, _ any) {
	r.tables = append(r.tables, tableName)
}

func (r *fakeRecorder) InsertData(tableName string, entry any) {
	r.entries[tableName] = append(r.entries[tableName], entry)
}

func (r *fakeRecorder) ListTables() []string {
	return r.tables
}

func (r *fakeRecorder) Flush() {}

func (r *fakeRecorder) Close() error {
	return nil
}

type lockedRecorder struct {
	sync.Mutex
	*fakeRecorder
}

func newLockedRecorder() *lockedRecorder {
	return &lockedRecorder{fakeRecorder: newFakeRecorder()}
}

func (r *lockedRecorder) InsertData(tableName string, entry any) {
	r.Lock()
	defer r.Unlock()

	r.fakeRecorder.InsertData(tableName, entry)
}

func (r *lockedRecorder) count(tableName string) int {
	r.Lock()
	defer r.Unlock()

	return len(r.entries[tableName])
}

var _ = Describe("Hooks", func() {
	var mmu *Comp

	BeforeEach(func() {
		mmu = MakeBuilder().Build("MMU")
	})

	exercise := func() {
		Expect(mmu.AddMapping(0x00100000, 0x00500000, vm.PageSize, rwCopyBack)).
			To(Succeed())
		mmu.Enable()
		_, _ = mmu.Translate(0x00100010, false)
		_, _ = mmu.Translate(0x00100020, false)
		_, _ = mmu.Translate(0x00200000, true)
		Expect(mmu.RemoveMapping(0x00100000)).To(Succeed())
		mmu.Disable()
	}

	Context("log hook", func() {
		It("should log every event but TLB hits", func() {
			buf := new(bytes.Buffer)
			mmu.AcceptHook(NewLogHook(log.New(buf, "", 0)))

			exercise()

			Expect(buf.String()).To(Equal(
				"MMU: map 0x00100000 -> 0x00500000, 0x1000 bytes, copyback|rw\n" +
					"MMU: translation enabled\n" +
					"MMU: tlb miss 0x00100010 -> 0x00500010\n" +
					"MMU: write fault at 0x00200000, not handled\n" +
					"MMU: unmap 0x00100000\n" +
					"MMU: translation disabled\n"))
		})
	})

	Context("TLB tracer", func() {
		It("should write one line per access", func() {
			buf := new(bytes.Buffer)
			mmu.AcceptHook(NewTLBTracer(buf))

			exercise()

			Expect(buf.String()).To(Equal(
				"0,MMU,miss,0x00100010\n" +
					"1,MMU,hit,0x00100020\n" +
					"2,MMU,fault,0x00200000\n"))
		})
	})

	Context("recording hook", func() {
		It("should store faults and mapping changes", func() {
			recorder := newFakeRecorder()
			mmu.AcceptHook(NewRecordingHook(recorder))

			exercise()

			Expect(recorder.tables).To(Equal(
				[]string{FaultTableName, MappingTableName}))

			faults := recorder.entries[FaultTableName]
			Expect(faults).To(HaveLen(1))
			fault := faults[0].(FaultRecord)
			Expect(fault.ID).NotTo(BeEmpty())
			Expect(fault.Component).To(Equal("MMU"))
			Expect(fault.VAddr).To(Equal(uint32(0x00200000)))
			Expect(fault.IsWrite).To(BeTrue())
			Expect(fault.Handled).To(BeFalse())

			mappings := recorder.entries[MappingTableName]
			Expect(mappings).To(HaveLen(2))
			mapped := mappings[0].(MappingRecord)
			unmapped := mappings[1].(MappingRecord)
			Expect(mapped.Op).To(Equal("map"))
			Expect(mapped.PAddr).To(Equal(uint32(0x00500000)))
			Expect(mapped.Size).To(Equal(uint32(vm.PageSize)))
			Expect(mapped.Attributes).To(Equal("copyback|rw"))
			Expect(unmapped.Op).To(Equal("unmap"))
			Expect(unmapped.VAddr).To(Equal(uint32(0x00100000)))
			Expect(unmapped.ID).NotTo(Equal(mapped.ID))
		})
	})

	Context("concurrent translations", func() {
		const (
			numWorkers = 8
			numPages   = 200
		)

		translateAll := func(check func(vAddr uint32)) {
			var wg sync.WaitGroup
			for w := 0; w < numWorkers; w++ {
				wg.Add(1)
				go func(w int) {
					defer GinkgoRecover()
					defer wg.Done()

					for i := 0; i < numPages; i++ {
						check(0x01000000 + uint32(w*numPages+i)*vm.PageSize)
					}
				}(w)
			}
			wg.Wait()
		}

		It("should give every traced access its own line", func() {
			buf := new(bytes.Buffer)
			mmu.AcceptHook(NewTLBTracer(buf))
			mmu.Enable()

			translateAll(func(vAddr uint32) {
				_, err := mmu.Translate(vAddr, false)
				Expect(err).To(MatchError(vm.ErrPageFaultUnhandled))
			})

			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			Expect(lines).To(HaveLen(numWorkers * numPages))

			seqs := make(map[string]bool)
			for _, line := range lines {
				fields := strings.Split(line, ",")
				Expect(fields).To(HaveLen(4))
				Expect(fields[2]).To(Equal("fault"))
				seqs[fields[0]] = true
			}
			Expect(seqs).To(HaveLen(numWorkers * numPages))
		})

		It("should demand page and record from many goroutines", func() {
			frames := vm.NewFramePool(0x10000000, numWorkers*numPages)
			pager := NewDemandPager(mmu, frames, rwCopyBack)
			recorder := newLockedRecorder()
			mmu.SetFaultHandler(pager)
			mmu.AcceptHook(NewRecordingHook(recorder))
			mmu.Enable()

			translateAll(func(vAddr uint32) {
				_, err := mmu.Translate(vAddr, true)
				Expect(err).To(MatchError(vm.ErrTranslationFault))
				Expect(err).NotTo(MatchError(vm.ErrPageFaultUnhandled))

				pAddr, err := mmu.Translate(vAddr, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(pAddr).To(BeNumerically(">=", 0x10000000))
			})

			Expect(pager.NumMapped()).To(Equal(numWorkers * numPages))
			Expect(frames.NumFreeFrames()).To(Equal(0))
			Expect(mmu.Stats().PageFaults).
				To(Equal(uint64(numWorkers * numPages)))
			Expect(recorder.count(FaultTableName)).
				To(Equal(numWorkers * numPages))
			Expect(recorder.count(MappingTableName)).
				To(Equal(numWorkers * numPages))
		})
	})
})
