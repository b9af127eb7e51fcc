package cmd

import (
	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/ui"
)

func newAlgorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the supported fingerprint algorithms",
		Long:  "List the supported fingerprint algorithms. The default is marked with *.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintAlgorithms(cmd.OutOrStdout())
		},
	}
}
