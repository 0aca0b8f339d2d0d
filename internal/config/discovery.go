package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath overrides config discovery when set.
const EnvConfigPath = "STARDISPATCH_CONFIG"

// DiscoverConfigFile finds the config file by checking standard locations.
// Priority order: $STARDISPATCH_CONFIG, ~/.config/stardispatch/config.yaml,
// /etc/stardispatch/config.yaml, ./config.yaml.
func DiscoverConfigFile() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("%s points at %s, which does not exist", EnvConfigPath, path)
	}

	for _, path := range candidatePaths() {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found (checked $%s, ~/.config/stardispatch, /etc/stardispatch, ./config.yaml)", EnvConfigPath)
}

func candidatePaths() []string {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "stardispatch", "config.yaml"))
	}
	return append(paths, "/etc/stardispatch/config.yaml", "config.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
