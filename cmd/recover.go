/*
Copyright © 2025 engineercoding
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/config"
	"github.com/engineercoding/dedupe/internal/ui"
)

func newRecoverCmd(g *globalOptions) *cobra.Command {
	var (
		storeRoot string
		retention string
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Finish or undo relocations left by an interrupted run",
		Long: `Replay the journals in the store: files that were already moved into the
store get their links, half-created links are removed and everything else is
left as it was. Finished journals older than the retention are purged.

Do not run this while another dedupe process uses the same store.

Example:
  dedupe recover --store /backups/.dedupe
  dedupe recover --store /backups/.dedupe --retention 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(g, storeRoot, func(cfg *config.Config) {
				if cmd.Flags().Changed("retention") {
					cfg.JournalRetention = retention
				}
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			res, err := mgr.Recover()
			if err != nil {
				return err
			}
			ui.PrintRecovery(cmd.OutOrStdout(), res)
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d journal(s) could not be recovered", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storeRoot, "store", "", "Store directory")
	cmd.Flags().StringVar(&retention, "retention", "", "Purge finished journals older than this duration, e.g. 72h")
	return cmd
}
