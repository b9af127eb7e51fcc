package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/engineercoding/dedupe/internal/config"
	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/internal/deduplication"
	"github.com/engineercoding/dedupe/internal/progress"
)

// runFlags holds the tunables shared by run and add.
type runFlags struct {
	store         string
	algorithm     string
	workers       int
	exclude       []string
	minSize       string
	ioLimit       string
	relativeLinks bool
	noIndex       bool
	dryRun        bool
	yes           bool
}

func addRunFlags(flags *pflag.FlagSet, f *runFlags) {
	flags.StringVar(&f.algorithm, "algorithm", "", "Fingerprint algorithm (see 'dedupe algorithms')")
	flags.IntVar(&f.workers, "workers", 0, "Number of files fingerprinted in parallel")
	flags.StringArrayVar(&f.exclude, "exclude", nil, "Skip files and directories whose name matches GLOB (repeatable)")
	flags.StringVar(&f.minSize, "min-size", "", "Ignore files smaller than SIZE, e.g. 4KB")
	flags.StringVar(&f.ioLimit, "io-limit", "", "Cap read throughput at RATE per second, e.g. 50MB")
	flags.BoolVar(&f.relativeLinks, "relative-links", false, "Create relative symlinks instead of absolute ones")
	flags.BoolVar(&f.noIndex, "no-index", false, "Do not use or update the fingerprint index")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Report what would be done without changing anything")
	flags.BoolVarP(&f.yes, "yes", "y", false, "Do not ask for confirmation")
}

// apply overrides cfg with every flag the user set explicitly.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		cfg.Algorithm = f.algorithm
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, f.exclude...)
	}
	if flags.Changed("min-size") {
		cfg.MinSize = f.minSize
	}
	if flags.Changed("io-limit") {
		cfg.IOLimit = f.ioLimit
	}
	if f.relativeLinks {
		cfg.LinkStyle = constants.LinkStyleRelative
	}
}

// loadConfig reads --config, or dedupe.yaml inside the store when it exists.
func loadConfig(g *globalOptions, storeRoot string) (config.Config, error) {
	path := g.configFile
	if path == "" {
		if storeRoot == "" {
			return config.Default(), nil
		}
		path = filepath.Join(storeRoot, constants.ConfigFileName)
	}
	cfg, found, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if found {
		log.Debug().Str("path", path).Msg("Loaded configuration")
	} else if g.configFile != "" {
		return cfg, fmt.Errorf("configuration file %s not found", path)
	}
	return cfg, nil
}

// defaultStore is where the store lives when --store is not given.
func defaultStore(root string) string {
	return filepath.Join(root, constants.DefaultStoreDirName)
}

func newProgress(cmd *cobra.Command, g *globalOptions) *progress.Manager {
	return progress.NewManager(progress.Options{
		Quiet:   g.quiet,
		Verbose: g.verbosity > 0,
		Out:     cmd.OutOrStdout(),
	})
}

// openManager builds a manager for commands that only read or repair the store.
func openManager(g *globalOptions, storeRoot string, overrides ...func(*config.Config)) (*deduplication.Manager, error) {
	if storeRoot == "" {
		return nil, fmt.Errorf("--store is required")
	}
	cfg, err := loadConfig(g, storeRoot)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	return deduplication.NewManager(deduplication.Options{StoreRoot: storeRoot, Config: cfg})
}
