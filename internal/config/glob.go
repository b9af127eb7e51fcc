package config

import "path/filepath"

func validateGlob(pattern string) error {
	_, err := filepath.Match(pattern, "")
	return err
}
