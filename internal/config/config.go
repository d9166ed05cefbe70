// Package config loads scriptsync configuration from a YAML file with
// environment variable fallbacks, so a bare environment (DOMAIN, API_TOKEN,
// SCRIPTPATH) is enough to run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete scriptsync configuration.
type Config struct {
	API   APIConfig   `yaml:"api"`
	Paths PathsConfig `yaml:"paths"`
	Serve ServeConfig `yaml:"serve"`
}

// APIConfig configures the remote store endpoint.
type APIConfig struct {
	Domain string `yaml:"domain"`
	Token  string `yaml:"token"`
}

// PathsConfig configures the local working directory root. The four export
// roots live directly under it, next to the VCS metadata.
type PathsConfig struct {
	Root string `yaml:"root"`
}

// ServeConfig configures the webhook trigger server.
type ServeConfig struct {
	Enabled           bool     `yaml:"enabled"`
	ListenAddr        string   `yaml:"listen_addr"`
	WebhookSecretFile string   `yaml:"webhook_secret_file"`
	AllowedEventTypes []string `yaml:"allowed_event_types"`
	AllowedRefs       []string `yaml:"allowed_refs"`
}

// RunMode toggles the side-effecting stages of a sync run. The zero value
// disables everything; DefaultRunMode enables everything.
type RunMode struct {
	// Pull hard-resets the working tree to the remote tracking branch
	// before reconciliation.
	Pull bool
	// Push commits and pushes local changes after pruning.
	Push bool
	// Writeback pushes drifted editable content to the remote store.
	Writeback bool
	// WriteFiles enables export writes and pruning deletions. When false,
	// intended writes are logged and the manifest is still built, so a dry
	// run never reports spurious pruning.
	WriteFiles bool
}

// DefaultRunMode returns the mode for a normal sync run.
func DefaultRunMode() RunMode {
	return RunMode{Pull: true, Push: true, Writeback: true, WriteFiles: true}
}

// Load reads the configuration file at path, or builds a configuration from
// the environment when path is empty.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(os.ExpandEnv(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields.
func (c *Config) expandEnv() {
	c.API.Domain = os.ExpandEnv(c.API.Domain)
	c.API.Token = os.ExpandEnv(c.API.Token)
	c.Paths.Root = os.ExpandEnv(c.Paths.Root)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.WebhookSecretFile = os.ExpandEnv(c.Serve.WebhookSecretFile)
}

// applyDefaults fills empty fields from the environment.
func (c *Config) applyDefaults() {
	if c.API.Domain == "" {
		c.API.Domain = os.Getenv("DOMAIN")
	}
	if c.API.Token == "" {
		c.API.Token = os.Getenv("API_TOKEN")
	}
	if c.Paths.Root == "" {
		c.Paths.Root = os.Getenv("SCRIPTPATH")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API.Domain == "" {
		return fmt.Errorf("api.domain is required (or set DOMAIN)")
	}
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (or set API_TOKEN)")
	}
	if c.Paths.Root == "" {
		return fmt.Errorf("paths.root is required (or set SCRIPTPATH)")
	}
	if !filepath.IsAbs(c.Paths.Root) {
		return fmt.Errorf("paths.root must be an absolute path: %s", c.Paths.Root)
	}

	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.WebhookSecretFile == "" {
			return fmt.Errorf("serve.webhook_secret_file is required when serve is enabled")
		}
	}

	return nil
}

// ScriptsDir returns the editable script tree root.
func (c *Config) ScriptsDir() string {
	return filepath.Join(c.Paths.Root, "scripts")
}

// ScriptsRawDir returns the raw script snapshot tree root.
func (c *Config) ScriptsRawDir() string {
	return filepath.Join(c.Paths.Root, "scriptsraw")
}

// SnippetsDir returns the editable snippet tree root.
func (c *Config) SnippetsDir() string {
	return filepath.Join(c.Paths.Root, "snippets")
}

// SnippetsRawDir returns the raw snippet snapshot tree root.
func (c *Config) SnippetsRawDir() string {
	return filepath.Join(c.Paths.Root, "snippetsraw")
}

// AllRoots returns the four export roots in a fixed order.
func (c *Config) AllRoots() []string {
	return []string{
		c.ScriptsDir(),
		c.ScriptsRawDir(),
		c.SnippetsDir(),
		c.SnippetsRawDir(),
	}
}

// RawPrefixes returns the repo-relative directory names of the raw snapshot
// trees. Commit messages never summarize paths under these.
func (c *Config) RawPrefixes() []string {
	return []string{"scriptsraw", "snippetsraw"}
}
