package main

import (
	"os"
	"path/filepath"
)

const defaultConfigName = "aegis.yaml"

// defaultConfigPath returns ./aegis.yaml if present, otherwise
// ~/.aegis/aegis.yaml, matching the teacher's "local file first, home
// directory fallback" convention in internal/profile.
func defaultConfigPath() string {
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return defaultConfigName
	}
	return filepath.Join(home, ".aegis", defaultConfigName)
}

// defaultDataDir expands a leading "~" in a configured data directory.
func defaultDataDir(dir string) string {
	if dir == "" {
		dir = "~/.aegis"
	}
	if dir == "~" || len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			if dir == "~" {
				return home
			}
			return filepath.Join(home, dir[2:])
		}
	}
	return dir
}
