// Package config loads pngdup's optional YAML configuration file.
//
// A config file names the suffix palette for an asset pipeline and the
// defaults for the boolean switches, for example:
//
//	suffixes: [Blanco, Rojo, Azul]
//	verify: true
//	journal: false
//	sync: false
//	workers: 4
//
// Values given on the command line take precedence over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a config file that parsed but holds unusable values.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds file-level settings. A nil Suffixes means "not set".
type Config struct {
	Suffixes []string `yaml:"suffixes"`
	Verify   bool     `yaml:"verify"`
	Journal  bool     `yaml:"journal"`
	Sync     bool     `yaml:"sync"`
	Workers  int      `yaml:"workers"` // 0 selects runtime.NumCPU()
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML config data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges. Suffix labels are validated by the duplicator.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}

	return nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
