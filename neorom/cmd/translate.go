package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate ADDR...",
	Short: "Boot the MMU and translate virtual addresses.",
	Long: "`translate 0x00E00010 0x00400000` boots the MMU with the standard " +
		"memory map and prints the physical address of every argument.",
	Args: cobra.MinimumNArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)
	translateCmd.Flags().Bool("write", false, "Translate as writes")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	isWrite, _ := cmd.Flags().GetBool("write")

	accesses := make([]access, 0, len(args))
	for _, arg := range args {
		addr, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return fmt.Errorf("address %q: %w", arg, err)
		}

		accesses = append(accesses, access{vAddr: uint32(addr), isWrite: isWrite})
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, verboseOutput(cmd))
	if err != nil {
		return err
	}
	defer s.close()

	replayTrace(accesses, s.mmu, cmd.OutOrStdout(), nil)

	return nil
}
