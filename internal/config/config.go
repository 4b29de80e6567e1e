// Package config handles tether configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (TETHER_*)
//  2. Config file (<config root>/config.yaml)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/musher-dev/tether/internal/paths"
)

const (
	// DefaultScrollbackLines is the number of lines a session keeps.
	DefaultScrollbackLines = 1000
	// DefaultFontSize is the font size used to compute the best-fit grid.
	DefaultFontSize = 14
	// DefaultRenderer lets the session pick the best available backend.
	DefaultRenderer = "auto"
	// DefaultServerAddr is where tether serve listens.
	DefaultServerAddr = "127.0.0.1:7681"
)

// Config holds the tether configuration.
type Config struct {
	v   *viper.Viper
	dir string
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault("terminal.scrollback_lines", DefaultScrollbackLines)
	v.SetDefault("terminal.font_size", DefaultFontSize)
	v.SetDefault("terminal.font_family", "")
	v.SetDefault("terminal.theme_file", "")
	v.SetDefault("terminal.renderer", DefaultRenderer)
	v.SetDefault("recording.enabled", false)
	v.SetDefault("recording.dir", "")
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.shell", "")

	dir, err := paths.ConfigRoot()
	if err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("TETHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Missing file is fine; anything else is worth a warning.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v, dir: dir}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// IsSet reports whether key has a value from any source, defaults included.
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	if c.dir == "" {
		return errors.New("config directory is unavailable")
	}

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := c.v.WriteConfigAs(filepath.Join(c.dir, "config.yaml")); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// Keys returns every known key in dotted form, sorted.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)

	return keys
}

// ScrollbackLines returns the session scrollback size.
func (c *Config) ScrollbackLines() int {
	return c.GetInt("terminal.scrollback_lines")
}

// FontSize returns the font size used for grid fitting.
func (c *Config) FontSize() int {
	return c.GetInt("terminal.font_size")
}

// FontFamily returns the configured font family. Empty means the platform
// default.
func (c *Config) FontFamily() string {
	return c.GetString("terminal.font_family")
}

// ThemeFile returns the path of a YAML or TOML theme file, if any.
func (c *Config) ThemeFile() string {
	return c.GetString("terminal.theme_file")
}

// Renderer returns the preferred renderer tier.
func (c *Config) Renderer() string {
	return c.GetString("terminal.renderer")
}

// RecordingEnabled reports whether sessions are recorded by default.
func (c *Config) RecordingEnabled() bool {
	return c.GetBool("recording.enabled")
}

// RecordingDir returns the recordings directory override.
func (c *Config) RecordingDir() string {
	return c.GetString("recording.dir")
}

// ServerAddr returns the tether serve listen address.
func (c *Config) ServerAddr() string {
	return c.GetString("server.addr")
}

// ServerShell returns the command tether serve runs per connection.
func (c *Config) ServerShell() string {
	return c.GetString("server.shell")
}
