package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gatewaykit/httpdispatch/internal/util"
)

// Load reads, parses and validates a YAML configuration file. Fields
// missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, util.NewConfigError("path", "config file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewConfigError("path", fmt.Sprintf("config file does not exist: %s", path))
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, util.NewConfigError("path", fmt.Sprintf("config path is a directory: %s", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, util.NewConfigErrorWithCause("", "failed to parse YAML config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
