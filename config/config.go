// CLAUDE:SUMMARY visedit configuration: YAML file with defaults, environment overrides and validation.
// Package config loads the visedit configuration from a YAML file, fills
// defaults and applies VISEDIT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Sandbox kinds.
const (
	SandboxStatic  = "static"
	SandboxBrowser = "browser"
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Backend  BackendConfig `yaml:"backend"`
	Store    StoreConfig   `yaml:"store"`
	Sandbox  SandboxConfig `yaml:"sandbox"`
	Bus      BusConfig     `yaml:"bus"`
	Persist  PersistConfig `yaml:"persist"`
	Audit    AuditConfig   `yaml:"audit"`
	LogLevel string        `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig is the editor API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// BackendConfig points at the page service. An empty URL means the
// editor uses the local store in-process.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig is the local page store.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Addr is the listener of the "store" role.
	Addr string `yaml:"addr"`
	// GeneratorURL is the LLM-backed service generation and
	// edit-by-prompt are delegated to. Empty disables them.
	GeneratorURL string `yaml:"generator_url"`
}

// SandboxConfig selects and tunes the rendering sandbox.
type SandboxConfig struct {
	Kind             string        `yaml:"kind"` // static | browser
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	ClickTimeout     time.Duration `yaml:"click_timeout"`
}

// BusConfig sizes the sandbox message bus.
type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

// PersistConfig bounds background saves.
type PersistConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AuditConfig controls the audit trail. By default it shares the page
// store database; Path gives it its own file, which is the only way to
// audit when the editor talks to a remote backend.
type AuditConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path (skipped when empty), fills defaults, applies the
// environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/pages.db"
	}
	if c.Store.Addr == "" {
		c.Store.Addr = ":8000"
	}
	if c.Sandbox.Kind == "" {
		c.Sandbox.Kind = SandboxStatic
	}
	if c.Sandbox.ResourceBlocking == nil {
		c.Sandbox.ResourceBlocking = []string{"network", "media"}
	}
	if c.Sandbox.RecycleInterval <= 0 {
		c.Sandbox.RecycleInterval = 4 * time.Hour
	}
	if c.Sandbox.MemoryLimit <= 0 {
		c.Sandbox.MemoryLimit = 512 << 20
	}
	if c.Sandbox.ClickTimeout <= 0 {
		c.Sandbox.ClickTimeout = 5 * time.Second
	}
	if c.Bus.Capacity <= 0 {
		c.Bus.Capacity = 16
	}
	if c.Persist.Timeout <= 0 {
		c.Persist.Timeout = 15 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnv overrides fields from VISEDIT_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"VISEDIT_ADDR", &c.Server.Addr},
		{"VISEDIT_BACKEND_URL", &c.Backend.URL},
		{"VISEDIT_DB_PATH", &c.Store.Path},
		{"VISEDIT_STORE_ADDR", &c.Store.Addr},
		{"VISEDIT_GENERATOR_URL", &c.Store.GeneratorURL},
		{"VISEDIT_SANDBOX", &c.Sandbox.Kind},
		{"VISEDIT_CHROME_REMOTE", &c.Sandbox.Remote},
		{"VISEDIT_LOG_LEVEL", &c.LogLevel},
		{"VISEDIT_AUDIT_PATH", &c.Audit.Path},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}
	if v, ok := lookup("VISEDIT_BUS_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: VISEDIT_BUS_CAPACITY: %w", err)
		}
		c.Bus.Capacity = n
	}
	return nil
}

// Validate checks the values the binary cannot run with.
func (c *Config) Validate() error {
	switch c.Sandbox.Kind {
	case SandboxStatic, SandboxBrowser:
	default:
		return fmt.Errorf("config: sandbox.kind %q (use static or browser)", c.Sandbox.Kind)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if c.Bus.Capacity <= 0 {
		return fmt.Errorf("config: bus.capacity must be > 0")
	}
	return nil
}
