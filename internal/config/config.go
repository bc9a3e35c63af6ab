// Package config loads and saves the CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Sentinel errors
var (
	// ErrNotFound is returned when no config file exists yet.
	ErrNotFound = errors.New("config file not found")
)

// Storage backends for the durable session tier.
const (
	StorageFile   = "file"
	StorageBadger = "badger"
	StorageMemory = "memory"
)

// Config is the persisted CLI configuration.
type Config struct {
	// ServerURL is the base URL of the backend, serving both the auth
	// and the data API.
	ServerURL string `yaml:"server_url"`

	// APIKey is the project's public API key.
	APIKey string `yaml:"api_key"`

	// Storage selects the durable session tier: file, badger or memory.
	Storage string `yaml:"storage,omitempty"`

	// StorageDir overrides where the durable tier keeps its files.
	// Empty means a "state" directory next to the config file.
	StorageDir string `yaml:"storage_dir,omitempty"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	switch c.Storage {
	case "", StorageFile, StorageBadger, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	return nil
}

// Store reads and writes the config file under a base directory.
type Store struct {
	baseDir string
}

// NewStore creates a config store rooted at baseDir.
// If baseDir is empty, uses ~/.chrono/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".chrono")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &Store{baseDir: baseDir}, nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.baseDir }

// StateDir returns the directory for the durable session tier, honoring
// the config's override.
func (s *Store) StateDir(cfg *Config) string {
	if cfg != nil && cfg.StorageDir != "" {
		return cfg.StorageDir
	}
	return filepath.Join(s.baseDir, "state")
}

func (s *Store) path() string {
	return filepath.Join(s.baseDir, "config.yaml")
}

// Load reads the config file.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Save writes the config file atomically.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temp file first
	configPath := s.path()
	tempPath := configPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}
