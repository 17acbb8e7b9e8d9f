package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/neobench/neorom/bootrom"
	"github.com/neobench/neorom/config"
	"github.com/neobench/neorom/datarecording"
	"github.com/neobench/neorom/mem/vm"
	"github.com/neobench/neorom/mem/vm/mmu"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	faultColor   = color.New(color.FgRed)
	hitColor     = color.New(color.FgGreen)
	headingColor = color.New(color.FgCyan, color.Bold)
)

// A session is one booted MMU together with everything attached to it.
type session struct {
	cfg      config.Config
	pool     *vm.FramePool
	mmu      *mmu.Comp
	recorder datarecording.DataRecorder
	pager    *mmu.DemandPager
	trace    *os.File
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFiles, err := cmd.Flags().GetStringSlice("env")
	if err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("tlb-entries") {
		cfg.TLBEntries, _ = cmd.Flags().GetInt("tlb-entries")
	}

	if cmd.Flags().Lookup("record") != nil && cmd.Flags().Changed("record") {
		cfg.RecordPath, _ = cmd.Flags().GetString("record")
	}

	if cmd.Flags().Lookup("monitor") != nil && cmd.Flags().Changed("monitor") {
		cfg.MonitorPort, _ = cmd.Flags().GetInt("monitor")
	}

	if cmd.Flags().Lookup("tlb-trace") != nil && cmd.Flags().Changed("tlb-trace") {
		cfg.TLBTracePath, _ = cmd.Flags().GetString("tlb-trace")
	}

	if cmd.Flags().Lookup("demand-paging") != nil &&
		cmd.Flags().Changed("demand-paging") {
		cfg.DemandPaging, _ = cmd.Flags().GetBool("demand-paging")
	}

	return cfg, cfg.Validate()
}

// newSession builds the MMU described by cfg, attaches the requested hooks and
// runs the boot sequence.
func newSession(cfg config.Config, logOutput io.Writer) (*session, error) {
	s := &session{cfg: cfg}

	s.pool = vm.NewFramePool(cfg.TablePoolBase, cfg.TablePoolFrames)
	s.mmu = mmu.MakeBuilder().
		WithAllocator(s.pool).
		WithNumTLBEntries(cfg.TLBEntries).
		Build("MMU")

	if logOutput != nil {
		s.mmu.AcceptHook(mmu.NewLogHook(log.New(logOutput, "", log.Lmicroseconds)))
	}

	if cfg.RecordPath != "" {
		recorder, err := datarecording.New(cfg.RecordPath)
		if err != nil {
			return nil, err
		}

		s.recorder = recorder
		s.mmu.AcceptHook(mmu.NewRecordingHook(recorder))
	}

	if cfg.TLBTracePath != "" {
		f, err := os.Create(cfg.TLBTracePath)
		if err != nil {
			s.close()
			return nil, err
		}

		s.trace = f
		s.mmu.AcceptHook(mmu.NewTLBTracer(f))
	}

	if cfg.DemandPaging {
		frames := vm.NewFramePool(cfg.DemandPoolBase, cfg.DemandPoolFrames)
		s.pager = mmu.NewDemandPager(s.mmu, frames,
			vm.MakeAttributes(vm.CacheCopyBack, vm.ProtReadWrite))
		s.mmu.SetFaultHandler(s.pager)
	}

	err := bootrom.Boot(s.mmu, bootrom.DefaultMemoryMap(cfg))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("boot: %w", err)
	}

	return s, nil
}

func (s *session) close() {
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			fmt.Fprintln(os.Stderr, errorColor.Sprint(err))
		}
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			fmt.Fprintln(os.Stderr, errorColor.Sprint(err))
		}
	}
}

func verboseOutput(cmd *cobra.Command) io.Writer {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}

	return os.Stderr
}

func (s *session) printSummary(w io.Writer) {
	stats := s.mmu.Stats()
	usage := s.mmu.TableUsage()

	headingColor.Fprintln(w, "MMU summary")
	fmt.Fprintf(w, "  TLB hits:       %s\n", hitColor.Sprint(stats.TLBHits))
	fmt.Fprintf(w, "  TLB misses:     %d\n", stats.TLBMisses)
	fmt.Fprintf(w, "  page faults:    %s\n", faultColor.Sprint(stats.PageFaults))
	fmt.Fprintf(w, "  pointer tables: %d\n", usage.PointerTables)
	fmt.Fprintf(w, "  page tables:    %d\n", usage.PageTables)
	fmt.Fprintf(w, "  mapped pages:   %d\n", usage.MappedPages)
	fmt.Fprintf(w, "  free frames:    %d of %d\n",
		s.pool.NumFreeFrames(), s.pool.NumFrames())

	if s.pager != nil {
		fmt.Fprintf(w, "  demand paged:   %d\n", s.pager.NumMapped())
	}
}
