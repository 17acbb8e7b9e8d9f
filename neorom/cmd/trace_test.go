package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neobench/neorom/config"
	"github.com/neobench/neorom/mem/vm/mmu"
	"github.com/neobench/neorom/monitoring"
)

var _ = Describe("Trace", func() {
	BeforeEach(func() {
		color.NoColor = true
	})

	Context("parsing", func() {
		It("should parse reads and writes", func() {
			accesses, err := parseTrace(strings.NewReader(
				"# boot trace\n" +
					"r 0x00100010\n" +
					"\n" +
					"W 4096\n"))

			Expect(err).NotTo(HaveOccurred())
			Expect(accesses).To(Equal([]access{
				{vAddr: 0x00100010},
				{vAddr: 0x1000, isWrite: true},
			}))
		})

		It("should report the line of a malformed access", func() {
			_, err := parseTrace(strings.NewReader("r 0x0\nx 0x1000\n"))

			Expect(err).To(MatchError(ContainSubstring("line 2")))
		})

		It("should reject addresses beyond 32 bits", func() {
			_, err := parseTrace(strings.NewReader("r 0x100000000\n"))

			Expect(err).To(HaveOccurred())
		})

		It("should reject lines without an address", func() {
			_, err := parseTrace(strings.NewReader("r\n"))

			Expect(err).To(HaveOccurred())
		})
	})

	Context("replaying against a booted MMU", func() {
		var s *session

		BeforeEach(func() {
			var err error
			s, err = newSession(config.Default(), nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should print every translation", func() {
			out := new(bytes.Buffer)
			monitor := monitoring.NewMonitor()
			bar := monitor.CreateProgressBar("trace", 3)

			numFaults := replayTrace([]access{
				{vAddr: 0x00001234},
				{vAddr: 0x00E00010, isWrite: true},
				{vAddr: 0x00400000},
			}, s.mmu, out, bar)

			Expect(numFaults).To(Equal(1))
			Expect(out.String()).To(Equal(
				"r 0x00001234 -> 0x00001234\n" +
					"w 0x00e00010 -> 0x00200010\n" +
					"r 0x00400000 fault, not handled\n"))
			status := bar.Status()
			Expect(status.Finished).To(Equal(uint64(3)))
			Expect(status.InProgress).To(Equal(uint64(0)))
			Expect(status.Translated).To(Equal(uint64(2)))
			Expect(status.FaultsDeclined).To(Equal(uint64(1)))
		})

		It("should report handled faults", func() {
			s.mmu.SetFaultHandler(mmu.FaultHandlerFunc(
				func(uint32, bool) bool { return true }))
			out := new(bytes.Buffer)

			replayTrace([]access{{vAddr: 0x00400000}}, s.mmu, out, nil)

			Expect(out.String()).To(Equal("r 0x00400000 fault, handled\n"))
		})

		It("should summarize the session", func() {
			_, _ = s.mmu.Translate(0x00001000, false)
			_, _ = s.mmu.Translate(0x00001000, false)
			out := new(bytes.Buffer)

			s.printSummary(out)

			Expect(out.String()).To(ContainSubstring("TLB hits:       1"))
			Expect(out.String()).To(ContainSubstring("TLB misses:     1"))
			Expect(out.String()).To(ContainSubstring("page tables:    14"))
			Expect(out.String()).To(ContainSubstring("free frames:    112 of 128"))
		})
	})

	Context("with demand paging and a TLB trace", func() {
		It("should map faulting pages and trace every access", func() {
			cfg := config.Default()
			cfg.DemandPaging = true
			cfg.TLBTracePath = filepath.Join(GinkgoT().TempDir(), "tlb.csv")

			s, err := newSession(cfg, nil)
			Expect(err).NotTo(HaveOccurred())

			out := new(bytes.Buffer)
			numFaults := replayTrace([]access{
				{vAddr: 0x00400000, isWrite: true},
				{vAddr: 0x00400010},
			}, s.mmu, out, nil)

			Expect(numFaults).To(Equal(1))
			Expect(out.String()).To(Equal(
				"w 0x00400000 fault, handled\n" +
					"r 0x00400010 -> 0x00400010\n"))

			summary := new(bytes.Buffer)
			s.printSummary(summary)
			Expect(summary.String()).To(ContainSubstring("demand paged:   1"))

			s.close()
			trace, err := os.ReadFile(cfg.TLBTracePath)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(trace)).To(Equal(
				"0,MMU,fault,0x00400000\n" +
					"1,MMU,miss,0x00400010\n"))
		})
	})
})
