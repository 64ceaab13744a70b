// Package config loads and validates the application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/codefionn/loopguard/internal/detect"
	"github.com/codefionn/loopguard/internal/recovery"
)

// Config represents application configuration
type Config struct {
	LogLevel string `json:"log_level"` // debug, info, warn, error, none
	LogPath  string `json:"-"`

	// TokenEncoding names the tokenizer used for turn content. Empty
	// selects the default; an unknown encoding falls back to a word
	// based approximation.
	TokenEncoding string `json:"token_encoding,omitempty"`

	Detect   detect.Config   `json:"detect"`
	Recovery recovery.Config `json:"recovery"`
}

// DefaultConfig returns a config with all defaults filled in
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Detect:   detect.DefaultConfig(),
		Recovery: recovery.DefaultConfig(),
	}
}

// Load reads configuration from the given JSON file. A missing file yields
// the defaults; fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
