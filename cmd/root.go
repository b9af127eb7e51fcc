/*
Copyright © 2025 engineercoding
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/logging"
)

// errIncomplete is returned after the summary when some files could not be
// deduplicated, so the process exits non-zero.
var errIncomplete = errors.New("some files could not be deduplicated")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	verbosity  int
	quiet      bool
	configFile string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "dedupe",
		Short: "dedupe - collapse duplicate files in backup trees into symlinks",
		Long: `dedupe finds files with identical content under a directory tree, moves one
canonical copy of each into a store directory and replaces every copy with a
symlink to it. Runs are journaled so an interrupted run can be finished or
undone with 'dedupe recover'.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(g.verbosity, g.quiet)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().CountVarP(&g.verbosity, "verbose", "v", "Increase output detail (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "Disable progress bars and reduce output")
	rootCmd.PersistentFlags().StringVar(&g.configFile, "config", "", "Configuration file (default <store>/dedupe.yaml)")

	rootCmd.AddCommand(newRunCmd(g))
	rootCmd.AddCommand(newAddCmd(g))
	rootCmd.AddCommand(newVerifyCmd(g))
	rootCmd.AddCommand(newStatsCmd(g))
	rootCmd.AddCommand(newRecoverCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))
	rootCmd.AddCommand(newAlgorithmsCmd())

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errIncomplete) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
