package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sdfat/sdfat/drivers/fat32"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// GlobalConfig is the tool configuration read from the config file. Command
// line flags take precedence over it.
type GlobalConfig struct {
	// Image is the image file or block device used when --image isn't given.
	Image string `yaml:"image"`
	// Partition selects the volume: "auto", "none", or a partition index.
	Partition string `yaml:"partition"`
	LogLevel  string `yaml:"log_level"`
	// Format holds defaults for the `format` command.
	Format fat32.FormatOptions `yaml:"format"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sdfat", "config.yml")
}

// readConfig loads the config file at `path`. A missing file gives the default
// configuration unless `mustExist` is set.
func readConfig(fs afero.Fs, path string, mustExist bool) (GlobalConfig, error) {
	config := GlobalConfig{
		Partition: "auto",
		LogLevel:  "warning",
	}
	if path == "" {
		return config, nil
	}

	cfgBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return config, nil
		}
		return config, fmt.Errorf("failed to read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(cfgBytes, &config); err != nil {
		return config, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return config, nil
}
