// Package config handles reading and writing .bosun/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .bosun/config.yaml.
type Config struct {
	Version int           `yaml:"version"`
	Model   string        `yaml:"model"`
	Context ContextConfig `yaml:"context"`
	Request RequestConfig `yaml:"request"`
	Voice   VoiceConfig   `yaml:"voice"`
	Storage StorageConfig `yaml:"storage"`
}

// ContextConfig controls the context budget manager.
type ContextConfig struct {
	Ceiling            int     `yaml:"ceiling"`              // hard token ceiling
	NearLimitThreshold float64 `yaml:"near_limit_threshold"` // fraction of ceiling
	KeepRatio          float64 `yaml:"keep_ratio"`           // fraction of messages kept by trim
	MinKeep            int     `yaml:"min_keep"`
}

// RequestConfig bounds generation requests.
type RequestConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// VoiceConfig controls the voice capability edges.
type VoiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StorageConfig locates the key-value database.
type StorageConfig struct {
	Database string `yaml:"database"` // relative to .bosun/
}

const configDir = ".bosun"
const configFile = "config.yaml"

// ReadConfig reads .bosun/config.yaml from the given project directory.
// dir is the project root (not .bosun/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg to .bosun/config.yaml in the given project
// directory, creating .bosun/ if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Model:   "opus",
		Context: ContextConfig{
			Ceiling:            8000,
			NearLimitThreshold: 0.8,
			KeepRatio:          0.7,
			MinKeep:            5,
		},
		Request: RequestConfig{
			TimeoutSeconds: 30,
		},
		Voice: VoiceConfig{
			Enabled: false,
		},
		Storage: StorageConfig{
			Database: "bosun.db",
		},
	}
}

// RequestTimeout returns the configured generation timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	if c.Request.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Request.TimeoutSeconds) * time.Second
}
