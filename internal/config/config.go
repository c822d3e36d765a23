// Package config resolves a sandbox profile: the home directory a guest
// is rooted at, its netlist allowlist, and a handful of ambient
// defaults, following the same config-dir/env/file precedence chain the
// rest of the CLI uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// NetEndpoint is one netlist entry as stored in config.toml.
type NetEndpoint struct {
	Protocol string `toml:"protocol" json:"protocol"` // "tcp" or "udp"
	Addr     string `toml:"addr" json:"addr"`         // dotted-quad IPv4
	Port     uint16 `toml:"port" json:"port"`
}

// Config represents the ~/.wavehost/config.toml file.
type Config struct {
	DefaultHome string        `toml:"default_home,omitempty" json:"default_home"`
	Netlist     []NetEndpoint `toml:"netlist,omitempty" json:"netlist"`
	VM          VMConfig      `toml:"vm,omitempty" json:"vm"`
}

// VMConfig holds microVM isolation preferences for the "vm" subcommand.
type VMConfig struct {
	KernelImage string `toml:"kernel_image,omitempty" json:"kernel_image"`
	VCPUCount   int    `toml:"vcpu_count,omitempty" json:"vcpu_count"`
	MemSizeMiB  int    `toml:"mem_size_mib,omitempty" json:"mem_size_mib"`
}

// configDirOverride is set by the --config-dir flag or WAVEHOST_HOME env var.
var configDirOverride string

// SetConfigDir allows the CLI to pass in the --config-dir / WAVEHOST_HOME value.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// WavehostHome returns the config directory path.
// Precedence: --config-dir flag / SetConfigDir > WAVEHOST_HOME env > ~/.wavehost
func WavehostHome() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("WAVEHOST_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".wavehost")
	}
	return filepath.Join(home, ".wavehost")
}

// ConfigPath returns the full path to config.toml.
func ConfigPath() string {
	return filepath.Join(WavehostHome(), "config.toml")
}

// EnsureDir creates the wavehost home directory if it does not exist.
func EnsureDir() error {
	return os.MkdirAll(WavehostHome(), 0o755)
}

// Load reads config.toml and returns a Config struct. A missing file
// yields a zero-value Config (every sandbox profile field has a usable
// default).
func Load() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes the Config struct back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// validKeys enumerates the dotted keys the "config get/set" subcommands
// accept.
var validKeys = map[string]bool{
	"default_home":    true,
	"vm.kernel_image": true,
	"vm.vcpu_count":   true,
	"vm.mem_size_mib": true,
}

// Get reads a single config key.
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return getField(cfg, key), nil
}

// Set writes a single config key and persists config.toml.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	if err := setField(cfg, key, value); err != nil {
		return err
	}
	return Save(cfg)
}

func getField(cfg *Config, key string) string {
	switch key {
	case "default_home":
		return cfg.DefaultHome
	case "vm.kernel_image":
		return cfg.VM.KernelImage
	case "vm.vcpu_count":
		return fmt.Sprintf("%d", cfg.VM.VCPUCount)
	case "vm.mem_size_mib":
		return fmt.Sprintf("%d", cfg.VM.MemSizeMiB)
	}
	return ""
}

func setField(cfg *Config, key, value string) error {
	switch key {
	case "default_home":
		cfg.DefaultHome = value
	case "vm.kernel_image":
		cfg.VM.KernelImage = value
	case "vm.vcpu_count":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("vm.vcpu_count must be an integer: %w", err)
		}
		cfg.VM.VCPUCount = n
	case "vm.mem_size_mib":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("vm.mem_size_mib must be an integer: %w", err)
		}
		cfg.VM.MemSizeMiB = n
	}
	return nil
}
