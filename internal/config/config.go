package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the repository root when no
// explicit path is given
const FileName = "typesgate.yaml"

// Config represents the complete typesgate configuration
type Config struct {
	Repo     RepoConfig     `yaml:"repo"`
	Layout   LayoutConfig   `yaml:"layout"`
	Registry RegistryConfig `yaml:"registry"`
}

// RepoConfig configures the checkout being inspected
type RepoConfig struct {
	Path       string `yaml:"path"`
	BaseBranch string `yaml:"base_branch"`
	Remote     string `yaml:"remote"`
}

// LayoutConfig describes the directory-per-package layout of the repository
type LayoutConfig struct {
	TypesDir      string `yaml:"types_dir"`
	NotNeededFile string `yaml:"not_needed_file"`
}

// RegistryConfig configures the package registry used for deprecation checks
type RegistryConfig struct {
	URL         string        `yaml:"url"`
	TypesScope  string        `yaml:"types_scope"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	CacheSize   int           `yaml:"cache_size"`
}

// Default returns a configuration with every field set to its default
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOptional loads path if it exists and falls back to defaults otherwise.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.Path = os.ExpandEnv(c.Repo.Path)
	c.Repo.BaseBranch = os.ExpandEnv(c.Repo.BaseBranch)
	c.Repo.Remote = os.ExpandEnv(c.Repo.Remote)
	c.Layout.TypesDir = os.ExpandEnv(c.Layout.TypesDir)
	c.Layout.NotNeededFile = os.ExpandEnv(c.Layout.NotNeededFile)
	c.Registry.URL = os.ExpandEnv(c.Registry.URL)
	c.Registry.TypesScope = os.ExpandEnv(c.Registry.TypesScope)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Path == "" {
		c.Repo.Path = "."
	}
	if c.Repo.BaseBranch == "" {
		c.Repo.BaseBranch = "master"
	}
	if c.Repo.Remote == "" {
		c.Repo.Remote = "origin"
	}
	if c.Layout.TypesDir == "" {
		c.Layout.TypesDir = "types"
	}
	if c.Layout.NotNeededFile == "" {
		c.Layout.NotNeededFile = "notNeededPackages.json"
	}
	if c.Registry.URL == "" {
		c.Registry.URL = "https://registry.npmjs.org"
	}
	if c.Registry.TypesScope == "" {
		c.Registry.TypesScope = "@types"
	}
	if c.Registry.Timeout == 0 {
		c.Registry.Timeout = 30 * time.Second
	}
	if c.Registry.Concurrency == 0 {
		c.Registry.Concurrency = 4
	}
	if c.Registry.CacheSize == 0 {
		c.Registry.CacheSize = 512
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repo.BaseBranch == "" {
		return fmt.Errorf("repo.base_branch is required")
	}
	if c.Repo.Remote == "" {
		return fmt.Errorf("repo.remote is required")
	}

	// Layout paths are relative to the repository root
	if filepath.IsAbs(c.Layout.TypesDir) {
		return fmt.Errorf("layout.types_dir must be relative to the repository: %s", c.Layout.TypesDir)
	}
	if filepath.IsAbs(c.Layout.NotNeededFile) {
		return fmt.Errorf("layout.not_needed_file must be relative to the repository: %s", c.Layout.NotNeededFile)
	}

	u, err := url.Parse(c.Registry.URL)
	if err != nil {
		return fmt.Errorf("invalid registry.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("registry.url must use http or https: %s", c.Registry.URL)
	}
	if c.Registry.Timeout < 0 {
		return fmt.Errorf("registry.timeout must be positive: %s", c.Registry.Timeout)
	}
	if c.Registry.Concurrency < 1 {
		return fmt.Errorf("registry.concurrency must be at least 1: %d", c.Registry.Concurrency)
	}
	if c.Registry.CacheSize < 1 {
		return fmt.Errorf("registry.cache_size must be at least 1: %d", c.Registry.CacheSize)
	}

	return nil
}

// RepoDir returns the absolute path of the repository checkout
func (c *Config) RepoDir() string {
	if abs, err := filepath.Abs(c.Repo.Path); err == nil {
		return abs
	}
	return c.Repo.Path
}

// TypesDir returns the absolute path of the typings directory
func (c *Config) TypesDir() string {
	return filepath.Join(c.RepoDir(), c.Layout.TypesDir)
}

// NotNeededPath returns the absolute path of the deprecation manifest
func (c *Config) NotNeededPath() string {
	return filepath.Join(c.RepoDir(), c.Layout.NotNeededFile)
}
