package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/neobench/neorom/config"
	"github.com/neobench/neorom/monitoring"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the MMU and optionally replay an access trace.",
	Long: "`boot --trace accesses.txt` boots the MMU, replays the trace and " +
		"prints a summary. Trace lines are `r 0xADDR` or `w 0xADDR`.",
	Args: cobra.NoArgs,
	RunE: runBoot,
}

func init() {
	rootCmd.AddCommand(bootCmd)
	bootCmd.Flags().String("trace", "", "Access trace to replay, - for stdin")
	bootCmd.Flags().String("record", "",
		"Record faults and mappings into this SQLite database")
	bootCmd.Flags().Int("monitor", 0,
		"Serve the MMU state on this port and wait for Ctrl-C")
	bootCmd.Flags().Bool("open-browser", false,
		"Open the monitoring page in the browser")
	bootCmd.Flags().String("tlb-trace", "",
		"Write one CSV line per TLB hit, TLB miss and fault to this file")
	bootCmd.Flags().Bool("demand-paging", false,
		"Back faulting pages with frames of the demand pool")
}

func runBoot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("open-browser") {
		cfg.OpenBrowser, _ = cmd.Flags().GetBool("open-browser")
	}

	s, err := newSession(cfg, verboseOutput(cmd))
	if err != nil {
		return err
	}
	defer s.close()

	var monitor *monitoring.Monitor
	if cfg.MonitorPort != 0 {
		monitor = startMonitor(s, cfg)
	}

	out := cmd.OutOrStdout()

	tracePath, _ := cmd.Flags().GetString("trace")
	if tracePath != "" {
		err = replayFile(tracePath, s, monitor, out)
		if err != nil {
			return err
		}
	}

	s.printSummary(out)

	if monitor != nil {
		waitForInterrupt()
	}

	return nil
}

func startMonitor(s *session, cfg config.Config) *monitoring.Monitor {
	monitor := monitoring.NewMonitor().WithPortNumber(cfg.MonitorPort)
	monitor.RegisterComponent(s.mmu)
	monitor.StartServer()

	if cfg.OpenBrowser {
		if err := monitor.OpenBrowser(); err != nil {
			fmt.Fprintln(os.Stderr, errorColor.Sprint(err))
		}
	}

	return monitor
}

func replayFile(
	path string,
	s *session,
	monitor *monitoring.Monitor,
	out io.Writer,
) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		in = f
	}

	accesses, err := parseTrace(in)
	if err != nil {
		return fmt.Errorf("trace %s: %w", path, err)
	}

	var progress progressTracker
	if monitor != nil {
		bar := monitor.CreateProgressBar("trace", uint64(len(accesses)))
		defer monitor.CompleteProgressBar(bar)
		progress = bar
	}

	headingColor.Fprintf(out, "Replaying %d accesses\n", len(accesses))
	replayTrace(accesses, s.mmu, out, progress)

	return nil
}

func waitForInterrupt() {
	fmt.Fprintln(os.Stderr, "Monitoring, press Ctrl-C to exit.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
}
