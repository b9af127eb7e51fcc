/*
Copyright © 2025 engineercoding
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/engineercoding/dedupe/internal/constants"
)

// Load reads the configuration at path on top of the defaults. A missing
// file is not an error; found reports whether one was read.
func Load(path string) (cfg Config, found bool, err error) {
	cfg = Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("error reading configuration: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, fmt.Errorf("error parsing configuration %s: %w", path, err)
	}
	return cfg, true, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.StandardDirPerms); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, constants.StandardFilePerms); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return os.Rename(tmp, path)
}
