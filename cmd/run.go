/*
Copyright © 2025 engineercoding
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/deduplication"
	"github.com/engineercoding/dedupe/internal/ui"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <root>",
		Short: "Deduplicate every file under a directory tree",
		Long: `Scan a directory tree, group files with identical content and replace each
group with symlinks to one canonical copy kept in the store.

Symlinks are never followed and existing links are left alone, so running
the command again on the same tree changes nothing.

Example:
  dedupe run /backups
  dedupe run /backups --store /srv/dedupe --dry-run
  dedupe run /backups --exclude '*.tmp' --min-size 4KB --algorithm xxh3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			storeRoot := f.store
			if storeRoot == "" {
				storeRoot = defaultStore(root)
			}

			cfg, err := loadConfig(g, storeRoot)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)

			mgr, err := deduplication.NewManager(deduplication.Options{
				Root:      root,
				StoreRoot: storeRoot,
				DryRun:    f.dryRun,
				NoIndex:   f.noIndex,
				Config:    cfg,
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Preflight(); err != nil {
				return err
			}

			if !f.dryRun && !f.yes && shouldPrompt(cmd) {
				label := fmt.Sprintf("Replace duplicates under %s with links into %s", mgr.Root(), mgr.StoreRoot())
				ok, err := ui.Confirm(label, cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted, nothing was changed.")
					return nil
				}
			}

			return runAndReport(cmd, g, mgr, func(ctx context.Context) (*deduplication.Summary, error) {
				return mgr.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&f.store, "store", "", "Store directory (default <root>/.dedupe)")
	addRunFlags(cmd.Flags(), f)
	return cmd
}

// shouldPrompt reports whether the command can ask the user. Stdin that is
// not a terminal only answers prompts when it was redirected explicitly.
func shouldPrompt(cmd *cobra.Command) bool {
	in := cmd.InOrStdin()
	if ui.IsTerminal(in) {
		return true
	}
	_, isFile := in.(interface{ Fd() uintptr })
	return !isFile
}

func runAndReport(cmd *cobra.Command, g *globalOptions, mgr *deduplication.Manager, run func(context.Context) (*deduplication.Summary, error)) error {
	pm := newProgress(cmd, g)
	mgr.SetProgressManager(pm)
	ctx := pm.SetupCancellation(cmd.Context())
	defer pm.Cleanup()

	summary, err := run(ctx)
	if summary != nil && !g.quiet {
		ui.PrintSummary(cmd.OutOrStdout(), summary, g.verbosity > 0)
	}
	if err != nil {
		if pm.IsCancelled() {
			return fmt.Errorf("cancelled: %w", err)
		}
		return err
	}
	if summary.Failed() {
		return errIncomplete
	}
	return nil
}
