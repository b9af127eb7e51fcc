package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/util"
)

// Config holds the tunables of a deduplication run. It is read from
// dedupe.yaml and overridden by command line flags.
type Config struct {
	Algorithm string   `yaml:"algorithm"`
	Workers   int      `yaml:"workers"`
	Exclude   []string `yaml:"exclude,omitempty"`
	MinSize   string   `yaml:"min_size,omitempty"`
	IOLimit   string   `yaml:"io_limit,omitempty"`
	LinkStyle string   `yaml:"link_style"`
	// Index enables the fingerprint cache in the store.
	Index            bool   `yaml:"index"`
	JournalRetention string `yaml:"journal_retention"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Algorithm:        constants.DefaultAlgorithm,
		Workers:          DefaultWorkers(),
		LinkStyle:        constants.LinkStyleAbsolute,
		Index:            true,
		JournalRetention: "168h",
	}
}

// DefaultWorkers is the fingerprinting pool size when none is configured.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := checksum.ParseAlgorithm(c.Algorithm); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if _, err := c.MinSizeBytes(); err != nil {
		errs = append(errs, fmt.Errorf("min_size: %w", err))
	}
	if c.IOLimit != "" {
		if n, err := util.ParseSize(c.IOLimit); err != nil {
			errs = append(errs, fmt.Errorf("io_limit: %w", err))
		} else if n <= 0 {
			errs = append(errs, fmt.Errorf("io_limit must be positive"))
		}
	}
	switch c.LinkStyle {
	case constants.LinkStyleAbsolute, constants.LinkStyleRelative:
	default:
		errs = append(errs, fmt.Errorf("link_style must be %q or %q, got %q",
			constants.LinkStyleAbsolute, constants.LinkStyleRelative, c.LinkStyle))
	}
	if _, err := c.Retention(); err != nil {
		errs = append(errs, fmt.Errorf("journal_retention: %w", err))
	}
	for _, pattern := range c.Exclude {
		if err := validateGlob(pattern); err != nil {
			errs = append(errs, fmt.Errorf("exclude %q: %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

// ChecksumAlgorithm returns the parsed algorithm.
func (c *Config) ChecksumAlgorithm() checksum.Algorithm {
	alg, err := checksum.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return checksum.Default
	}
	return alg
}

// MinSizeBytes parses MinSize.
func (c *Config) MinSizeBytes() (int64, error) {
	return util.ParseSize(c.MinSize)
}

// Retention parses JournalRetention. Empty means keep forever, reported as -1.
func (c *Config) Retention() (time.Duration, error) {
	if c.JournalRetention == "" {
		return -1, nil
	}
	d, err := time.ParseDuration(c.JournalRetention)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}
