/*
Copyright © 2025 engineercoding
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/config"
	"github.com/engineercoding/dedupe/internal/constants"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	f := &runFlags{}
	var retention string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write the store configuration file",
		Long: `Write dedupe.yaml into the store, starting from the current configuration
and applying the given flags. Later runs against the store pick it up.

Example:
  dedupe config --store /srv/dedupe --algorithm xxh3 --exclude '*.tmp'
  dedupe config --store /srv/dedupe --no-index --retention 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.store == "" {
				return fmt.Errorf("--store is required")
			}
			cfg, err := loadConfig(g, f.store)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if f.noIndex {
				cfg.Index = false
			}
			if cmd.Flags().Changed("retention") {
				cfg.JournalRetention = retention
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			path := g.configFile
			if path == "" {
				path = filepath.Join(f.store, constants.ConfigFileName)
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.store, "store", "", "Store directory")
	cmd.Flags().StringVar(&retention, "retention", "", "Keep finished journals for this long, e.g. 72h")
	addRunFlags(cmd.Flags(), f)
	_ = cmd.Flags().MarkHidden("dry-run")
	_ = cmd.Flags().MarkHidden("yes")
	return cmd
}
