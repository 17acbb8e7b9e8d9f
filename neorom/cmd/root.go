// Package cmd provides the command-line interface for neorom.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "neorom",
	Short: "neorom boots the software MMU of the boot ROM.",
	Long: `neorom builds the software MMU of the boot ROM, installs the ` +
		`standard memory map and enables translation. It can replay access ` +
		`traces against the MMU and serve its state over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env", nil,
		"Env files to load before reading NEOROM_* variables. "+
			"Defaults to .env if present.")
	rootCmd.PersistentFlags().Int("tlb-entries", 0,
		"Number of TLB entries. Overrides NEOROM_TLB_ENTRIES.")
	rootCmd.PersistentFlags().Bool("verbose", false,
		"Log MMU events to stderr.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Registered exit handlers run before the process exits.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint(err))
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
