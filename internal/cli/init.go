// Package cli implements the chronicled subcommands behind thin cobra
// wiring in cmd/chronicled.
package cli

import (
	"fmt"
	"os"

	"github.com/memyselfandm/chronicle-sub000/internal/auth"
	"github.com/memyselfandm/chronicle-sub000/internal/config"
	"gopkg.in/yaml.v3"
)

// InitConfig writes the config file with a generated admin key. An
// existing admin key is kept, so re-running init never invalidates keys
// already handed to scripts.
func InitConfig(path string) (key string, created bool, err error) {
	if path == "" {
		path = config.Path()
	}

	cfg := config.Default()
	if data, readErr := os.ReadFile(path); readErr == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return "", false, fmt.Errorf("parse existing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(readErr) {
		return "", false, fmt.Errorf("read config: %w", readErr)
	}

	if cfg.AdminKey != "" {
		return cfg.AdminKey, false, nil
	}

	key, err = auth.Generate()
	if err != nil {
		return "", false, err
	}
	cfg.AdminKey = key
	if err := cfg.Save(path); err != nil {
		return "", false, err
	}
	return key, true, nil
}
