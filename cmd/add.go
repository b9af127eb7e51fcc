/*
Copyright © 2025 engineercoding
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/deduplication"
)

func newAddCmd(g *globalOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Deduplicate specific files against the store",
		Long: `Fingerprint the given files and link each one that matches an object in the
store, or another given file, to that object.

Example:
  dedupe add --store /srv/dedupe /backups/2024/report.pdf
  dedupe add --store /srv/dedupe --dry-run a.iso b.iso`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.store == "" {
				return fmt.Errorf("--store is required")
			}
			cfg, err := loadConfig(g, f.store)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)

			mgr, err := deduplication.NewManager(deduplication.Options{
				StoreRoot: f.store,
				DryRun:    f.dryRun,
				NoIndex:   f.noIndex,
				Config:    cfg,
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			// add names its inputs explicitly, so there is nothing to confirm
			return runAndReport(cmd, g, mgr, func(ctx context.Context) (*deduplication.Summary, error) {
				return mgr.Add(ctx, args)
			})
		},
	}
	cmd.Flags().StringVar(&f.store, "store", "", "Store directory")
	addRunFlags(cmd.Flags(), f)
	_ = cmd.Flags().MarkHidden("yes")
	return cmd
}
