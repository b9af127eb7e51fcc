package cmd

import (
	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/ui"
)

func newStatsCmd(g *globalOptions) *cobra.Command {
	var storeRoot string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the store holds and how much space it saves",
		Long: `Show object counts and sizes per algorithm, the links recorded in the
fingerprint index and the space they save.

Objects without any recorded link are listed but never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(g, storeRoot)
			if err != nil {
				return err
			}
			defer mgr.Close()

			st, err := mgr.Stats(cmd.Context())
			if err != nil {
				return err
			}
			ui.PrintStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVar(&storeRoot, "store", "", "Store directory")
	return cmd
}
